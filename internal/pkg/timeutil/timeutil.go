package timeutil

import "time"

func NowUnix() int64 {
	return time.Now().Unix()
}

func NowMilli() int64 {
	return time.Now().UnixMilli()
}

// MonthDir formats t as YYYY-MM, the archive bucket used by the file store.
func MonthDir(t time.Time) string {
	return t.Format("2006-01")
}
