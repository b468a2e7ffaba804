package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"reelcast/internal/model/short"
	"reelcast/internal/service"
	shortsvc "reelcast/internal/service/short"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render every unit of a content file",
	Long: `Render every unit of a qna or advice content file to its own mp4.
Each unit goes to <output-dir>/<kind>_<YYYYMMDD_HHMM>_<index>/finalized_<kind>.mp4.
A failed unit is logged and the remaining units are still rendered.`,
	Example: `  reelcast render --kind qna --input askreddit.json
  cat aita.json | reelcast render --kind advice --input - --seed 42`,
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	flags := renderCmd.Flags()
	flags.StringP("kind", "k", "", "content kind (qna/advice)")
	flags.StringP("input", "i", "", "content JSON file, - for stdin")
	flags.StringP("output-dir", "o", "", "output directory (default: render.output_dir)")
	flags.Uint64("seed", 0, "random seed for background selection, 0 for random")
	flags.String("background-dir", "", "background video directory")
	flags.String("tts-provider", "", "tts provider (volc/command)")
	_ = renderCmd.MarkFlagRequired("kind")
	_ = renderCmd.MarkFlagRequired("input")

	_ = viper.BindPFlag("render.output_dir", flags.Lookup("output-dir"))
	_ = viper.BindPFlag("render.seed", flags.Lookup("seed"))
	_ = viper.BindPFlag("background.dir", flags.Lookup("background-dir"))
	_ = viper.BindPFlag("tts.provider", flags.Lookup("tts-provider"))
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if err := cfg.Render.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	kindFlag, _ := cmd.Flags().GetString("kind")
	kind, err := short.ParseKind(kindFlag)
	if err != nil {
		return err
	}

	inputPath, _ := cmd.Flags().GetString("input")
	var input io.Reader = os.Stdin
	if inputPath != "-" {
		f, err := os.Open(inputPath)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		input = f
	}

	pipeline, err := shortsvc.Build(cfg, nil)
	if err != nil {
		return err
	}
	svc := service.NewRenderService(nil, pipeline, nil, "", nil, cfg.Render.OutputDir)

	ctx, cancel := signalContext()
	defer cancel()

	result, err := svc.RenderFile(ctx, &service.RenderFileRequest{
		Kind:      kind,
		Input:     input,
		OutputDir: cfg.Render.OutputDir,
	})
	if err != nil {
		return err
	}

	for _, r := range result.Results {
		log.Info().
			Str("output", r.OutputPath).
			Dur("duration", r.Duration).
			Str("background", r.Background.SourcePath).
			Int("skipped", len(r.Skipped)).
			Msg("video rendered")
	}
	if len(result.Failures) > 0 {
		return fmt.Errorf("%d of %d units failed to render", len(result.Failures), len(result.Failures)+len(result.Results))
	}
	return nil
}
