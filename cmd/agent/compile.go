package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/algovids/algovids-agent/internal/config"
	"github.com/algovids/algovids-agent/internal/montage"
)

var compileFlags struct {
	plan   string
	assets montage.Assets
	out    string
	ffmpeg string
}

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Print the render command for a plan file without running it",
	Long: "Compile reads a segment plan (YAML or JSON list of {start, end}) and prints the " +
		"shell-quoted media command that would render it. No AI service or media processor is used.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := montage.LoadPlan(compileFlags.plan)
		if err != nil {
			return err
		}

		fg, err := montage.Compile(compileFlags.assets, plan)
		if err != nil {
			return err
		}

		out := compileFlags.out
		if out == "" {
			out = filepath.Join(".", montage.OutputFilename)
		}

		c, err := montage.NewEmitter(compileFlags.ffmpeg).Emit(fg, compileFlags.assets, out)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), c.String())
		return nil
	},
}

func init() {
	f := compileCmd.Flags()
	f.StringVar(&compileFlags.plan, "plan", "", "plan file")
	f.StringVar(&compileFlags.assets.Video, "video", "", "source video")
	f.StringVar(&compileFlags.assets.Narration, "narration", "", "narration audio")
	f.StringVar(&compileFlags.assets.SFX, "sfx", "", "sound effects track")
	f.StringVar(&compileFlags.assets.BGM, "bgm", "", "background music")
	f.StringVar(&compileFlags.out, "out", "", "output file (default ./"+montage.OutputFilename+")")
	f.StringVar(&compileFlags.ffmpeg, "ffmpeg", config.DefaultFFmpeg, "media processor binary")
	for _, name := range []string{"plan", "video", "narration", "sfx", "bgm"} {
		compileCmd.MarkFlagRequired(name)
	}
}
