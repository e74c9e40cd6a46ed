package logfields

import "go.uber.org/zap"

func Request(number int64) zap.Field {
	return zap.Int64("request.number", number)
}

func Review(id int64) zap.Field {
	return zap.Int64("request.review_id", id)
}

func Batch(name string) zap.Field {
	return zap.String("staging.batch", name)
}

func Project(val string) zap.Field {
	return zap.String("build.project", val)
}

func Package(val string) zap.Field {
	return zap.String("build.package", val)
}

func CheckName(val string) zap.Field {
	return zap.String("check.name", val)
}

func Run(id string) zap.Field {
	return zap.String("workflow.run_id", id)
}

func Step(name string) zap.Field {
	return zap.String("workflow.step", name)
}

func Workflow(name string) zap.Field {
	return zap.String("workflow.name", name)
}
