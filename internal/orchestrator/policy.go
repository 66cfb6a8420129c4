package orchestrator

import "OpenAgent-Chain/internal/goal"

// FailurePolicy 决定某个目标失败后整轮运行是否继续。
// 返回 true 表示继续执行其余目标。继续不会重试已失败的目标：
// 失败是终态，确定性的失败若被重试只会无限循环。
type FailurePolicy func(failures int, failed *goal.Goal) bool

// ContinueAlways 无论失败多少次都继续，是非交互运行的默认策略。
func ContinueAlways() FailurePolicy {
	return func(int, *goal.Goal) bool { return true }
}

// StopOnFirstFailure 在第一个目标失败后停止整轮运行。
func StopOnFirstFailure() FailurePolicy {
	return func(int, *goal.Goal) bool { return false }
}

// StopAfter 在累计失败达到 n 次后停止。n 小于等于 0 时等价于
// ContinueAlways。
func StopAfter(n int) FailurePolicy {
	return func(failures int, _ *goal.Goal) bool {
		if n <= 0 {
			return true
		}
		return failures < n
	}
}
