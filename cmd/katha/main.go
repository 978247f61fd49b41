package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"katha/internal/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	slot := &appSlot{}
	err := rootCmd.ExecuteContext(withAppSlot(ctx, slot))
	stop()
	slot.close()

	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(utils.UserMessage(err)))
		os.Exit(1)
	}
}
