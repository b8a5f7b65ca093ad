// Command clarify 는 명확화 에이전트를 한 번 실행하고 결과를 출력한다.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/park285/clarification-agent-go/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(defaultFactory, config.Load).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
