package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/algovids/algovids-agent/internal/export"
	"github.com/algovids/algovids-agent/internal/montage"
	"github.com/algovids/algovids-agent/internal/render"
)

var renderFlags struct {
	assets    montage.Assets
	key       string
	exportDir string
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render one montage and print the output path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		key := renderFlags.key
		if key == "" {
			key = a.cfg.DefaultCredential()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		res, err := a.renders.Render(ctx, render.Request{Assets: renderFlags.assets, Credential: key})
		if err != nil {
			var pe *render.ProcessError
			if errors.As(err, &pe) {
				fmt.Fprint(os.Stderr, pe.Stderr)
			}
			return err
		}

		if renderFlags.exportDir != "" && len(res.Plan) > 0 {
			edl := export.PlanEDL(res.Plan, renderFlags.assets.Video, "algovids "+res.ID, export.DefaultFrameRate)
			path, err := export.WriteEDL(renderFlags.exportDir, res.ID, edl)
			if err != nil {
				return fmt.Errorf("export plan: %w", err)
			}
			fmt.Fprintf(os.Stderr, "plan exported to %s\n", path)
		}

		fmt.Fprintf(os.Stderr, "mode=%s segments=%d render_id=%s\n", res.Mode, len(res.Plan), res.ID)
		fmt.Println(res.OutputPath)
		return nil
	},
}

func init() {
	f := renderCmd.Flags()
	f.StringVar(&renderFlags.assets.Video, "video", "", "source video")
	f.StringVar(&renderFlags.assets.Narration, "narration", "", "narration audio")
	f.StringVar(&renderFlags.assets.SFX, "sfx", "", "sound effects track")
	f.StringVar(&renderFlags.assets.BGM, "bgm", "", "background music (looped)")
	f.StringVar(&renderFlags.key, "key", "", "AI credential (defaults to GEMINI_API_KEY)")
	f.StringVar(&renderFlags.exportDir, "export-dir", "", "also write the segment plan as an EDL into this directory")
	for _, name := range []string{"video", "narration", "sfx", "bgm"} {
		renderCmd.MarkFlagRequired(name)
	}
}
