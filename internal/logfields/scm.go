package logfields

import "go.uber.org/zap"

func PullRequest(val int) zap.Field {
	return zap.Int("scm.pull_request", val)
}

func Repository(val string) zap.Field {
	return zap.String("scm.repository", val)
}

func SourceBranch(val string) zap.Field {
	return zap.String("scm.source_branch", val)
}

func TargetBranch(val string) zap.Field {
	return zap.String("scm.target_branch", val)
}

func Commit(val string) zap.Field {
	return zap.String("scm.commit", val)
}

func Tag(val string) zap.Field {
	return zap.String("scm.tag", val)
}
