package ports

type TimeUnit int

const (
	UnixTime TimeUnit = iota
	ChainTime
)

// SchedulerService fires one-shot tasks at round deadlines. Times are unix
// seconds, measured either on the local clock or on the latest block.
type SchedulerService interface {
	Start()
	Stop()

	Unit() TimeUnit
	AfterNow(at int64) bool
	ScheduleTaskOnce(at int64, task func()) error
	// Pending returns the number of tasks scheduled and not run yet.
	Pending() int
}
