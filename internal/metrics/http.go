package metrics

import (
	"strconv"
	"time"
)

// RecordHTTPRequest: HTTP 요청 결과를 기록합니다. route 는 등록된 경로 패턴이며 없으면 "unmatched" 로 묶는다.
func RecordHTTPRequest(method string, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordRateLimited: 요청 제한으로 거절된 요청 수를 올립니다.
func RecordRateLimited() {
	httpRateLimited.Inc()
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "other"
	}
	return strconv.Itoa(status/100) + "xx"
}
