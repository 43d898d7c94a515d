package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Print live stream events until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runStream,
}

func runStream(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer shutdown(a)

	m, err := a.NewStream()
	if err != nil {
		return err
	}
	sub := m.SubscribeChan()
	if err := m.Open(a.Config.Stream.Credential); err != nil {
		return err
	}
	defer m.Close()
	slog.Info("stream opened", "url", a.Config.Stream.URL)

	for {
		select {
		case <-ctx.Done():
			slog.Info("interrupted; closing stream")
			return nil
		case err := <-sub.Errors():
			slog.Warn("stream error", "error", err)
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stdout, "%s\t%s\n", ev.ReceivedAt.Format("15:04:05.000"), ev.Payload)
		}
	}
}
