package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/any-hub/any-cli/internal/version"
)

func (a *App) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本信息",
		Args:  cobra.NoArgs,
		// version 不需要主目录与日志初始化。
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(writer(cmd), version.Full())
			return nil
		},
	}
}
