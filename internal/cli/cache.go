package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/any-hub/any-cli/internal/cache"
)

func (a *App) cacheCommand() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "查看本地命令包缓存",
	}

	var asJSON bool
	ls := &cobra.Command{
		Use:   "ls",
		Short: "列出缓存条目",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root := a.cfg.Global.CacheRoot()
			entries, err := cache.ListEntries(root)
			if err != nil {
				return fmt.Errorf("读取缓存目录失败: %w", err)
			}
			out := writer(cmd)
			if asJSON {
				if entries == nil {
					entries = []cache.Entry{}
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			if len(entries) == 0 {
				fmt.Fprintf(out, "缓存为空: %s\n", root)
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tVERSION\tKEY")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Name, e.Version, e.Key)
			}
			return tw.Flush()
		},
	}
	ls.Flags().BoolVar(&asJSON, "json", false, "以 JSON 输出")

	key := &cobra.Command{
		Use:   "key <name> <version>",
		Short: "输出包名与版本对应的缓存目录名",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(writer(cmd), cache.Key(args[0], args[1]))
			return nil
		},
	}

	cacheCmd.AddCommand(ls, key)
	return cacheCmd
}
