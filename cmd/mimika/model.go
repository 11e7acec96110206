package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mimikastudio/mimika/internal/model"
	"github.com/mimikastudio/mimika/internal/paths"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Model catalog and acquisition commands",
	}

	cmd.AddCommand(newModelListCmd())
	cmd.AddCommand(newModelDownloadCmd())
	cmd.AddCommand(newModelDeleteCmd())
	return cmd
}

func newModelListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the model catalog with local state",
		RunE: func(_ *cobra.Command, _ []string) error {
			p := &paths.Service{}
			registry := model.NewRegistry(p.HubCacheDir())

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tENGINE\tMODE\tSIZE\tSTATE")
			for _, m := range model.Catalog() {
				state := "bundled"
				switch {
				case m.Type == model.AcquirePip:
					state = "pip package"
				case registry.IsDownloaded(m):
					state = "downloaded"
				default:
					state = "not downloaded"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f GB\t%s\n",
					m.Name, m.Engine, m.Mode, m.SizeGB, state)
			}
			return tw.Flush()
		},
	}
}

func newModelDownloadCmd() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "download <name>",
		Short: "Download one catalog model into the hub cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if token == "" {
				token = cfg.Models.HFToken
			}

			info, ok := model.Lookup(args[0])
			if !ok {
				return fmt.Errorf("model %q not in catalog", args[0])
			}
			if info.Type != model.AcquireHuggingFace {
				return fmt.Errorf("model %q is not downloadable (%s)", info.Name, info.Type)
			}

			p := &paths.Service{}
			registry := model.NewRegistry(p.HubCacheDir())

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			fetcher := &model.HubFetcher{Token: token}
			snapshot, err := fetcher.Fetch(ctx, info.Repo, registry.CacheDir(info))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(os.Stdout, "downloaded %s to %s\n", info.Name, snapshot)
			return err
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Hugging Face access token for gated repositories")

	return cmd
}

func newModelDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a downloaded model from the hub cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			p := &paths.Service{}
			registry := model.NewRegistry(p.HubCacheDir())
			manager := model.NewManager(registry, nil, nil)

			info, err := manager.Delete(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(os.Stdout, "deleted %s\n", info.Name)
			return err
		},
	}
}
