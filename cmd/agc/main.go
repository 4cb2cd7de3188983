package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/aceituno/teleagc/internal/audio"
	"github.com/aceituno/teleagc/internal/cli"
	"github.com/aceituno/teleagc/internal/config"
	"github.com/aceituno/teleagc/internal/control"
	"github.com/aceituno/teleagc/internal/dsp"
	"github.com/aceituno/teleagc/internal/logging"
	"github.com/aceituno/teleagc/internal/renderer"
	"github.com/aceituno/teleagc/internal/ui"
)

var version = "0.1.0"

// Exit codes
const (
	exitOK          = 0
	exitInvalidArgs = 2
	exitNoRenderer  = 3
	exitNoAudio     = 4
	exitInterrupted = 130
)

const discoverTimeout = 15 * time.Second

// CLI defines the command-line interface. Numeric and string overrides are
// pointers so an absent flag does not clobber a config-file value.
type CLI struct {
	Device      *string `help:"Renderer device name" placeholder:"NAME"`
	DeviceIndex *int    `help:"Audio input device index" placeholder:"N"`
	InputWav    string  `help:"Replay a WAV file instead of capturing" type:"existingfile" placeholder:"FILE"`

	VolumeMin         *int `help:"Absolute minimum volume" placeholder:"N"`
	VolumeMax         *int `help:"Absolute maximum volume" placeholder:"N"`
	VolumeBaselineMax *int `help:"Cap for automatic raises" placeholder:"N"`

	ThresholdLoud  *float64 `help:"Loud threshold in dBFS" placeholder:"DB"`
	ThresholdQuiet *float64 `help:"Quiet threshold in dBFS" placeholder:"DB"`
	TargetDb       *float64 `name:"target-db" help:"Target level in dBFS" placeholder:"DB"`

	Step     *int     `help:"Base volume step (1-10)" placeholder:"N"`
	Distance *float64 `help:"Microphone distance preset in metres" placeholder:"M"`

	Config string `short:"c" type:"path" help:"Path to TOML config file (optional)"`
	Logs   bool   `help:"Write a session report on exit"`

	ListDevices bool `help:"List audio input devices and exit"`
	Version     bool `short:"v" help:"Show version information"`
}

func main() {
	cliArgs := &CLI{}
	kong.Parse(cliArgs,
		kong.Name("agc"),
		kong.Description("Automatic gain control for a Chromecast-driven TV"),
		kong.UsageOnError(),
		kong.Help(cli.StyledHelpPrinter(kong.HelpOptions{Compact: true})),
		kong.Exit(func(code int) {
			if code != 0 {
				os.Exit(exitInvalidArgs)
			}
			os.Exit(exitOK)
		}),
	)

	if cliArgs.Version {
		cli.PrintVersion(version)
		os.Exit(exitOK)
	}

	if cliArgs.ListDevices {
		os.Exit(listDevices())
	}

	settings, err := buildSettings(cliArgs)
	if err != nil {
		cli.PrintError(err.Error())
		os.Exit(exitInvalidArgs)
	}

	os.Exit(run(cliArgs, settings))
}

func run(cliArgs *CLI, settings config.Settings) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Interrupts cancel the loop; the flag distinguishes exit code 130
	// from a cancel caused by the UI closing.
	var interrupted atomic.Bool
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			interrupted.Store(true)
			cancel()
		case <-ctx.Done():
		}
	}()

	// Audio source: live capture, or a WAV replay carrying its own rate.
	source, settings, code := openSource(cliArgs, settings)
	if code != exitOK {
		return code
	}

	// Renderer: one-time backend selection; the loop only sees Control.
	discoverCtx, discoverCancel := context.WithTimeout(ctx, discoverTimeout)
	rc, backend, err := renderer.Discover(discoverCtx, settings.DeviceName)
	discoverCancel()
	if err != nil {
		cli.PrintError(err.Error())
		return exitNoRenderer
	}
	defer rc.Close()

	reconnect := func(ctx context.Context) (renderer.Control, error) {
		ctx, cancel := context.WithTimeout(ctx, discoverTimeout)
		defer cancel()
		rc, _, err := renderer.Discover(ctx, settings.DeviceName)
		return rc, err
	}

	st := control.NewState(settings)
	baseline := control.NewBaseline(settings.TargetDB, settings.ThresholdLoud, settings.ThresholdQuiet)
	ctrl := control.NewController(st, baseline, rc, reconnect, nil)

	statusCh := make(chan tea.Msg, 100)
	sink := ui.NewSink(statusCh)

	humHz := dsp.MainsFrequency()
	loop := control.NewLoop(settings, source, st, baseline, ctrl, sink, humHz)
	model := ui.NewModel(settings.DeviceName, loop.Inputs(), statusCh)

	p := tea.NewProgram(model, tea.WithAltScreen())

	loopErr := make(chan error, 1)
	go func() {
		err := loop.Run(ctx)
		loopErr <- err
		p.Send(ui.LoopDoneMsg{Err: err})
	}()

	if _, err := p.Run(); err != nil {
		cli.PrintError(fmt.Sprintf("UI error: %v", err))
	}
	cancel()

	err = <-loopErr
	finish(cliArgs, settings, backend, loop)

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		if interrupted.Load() {
			return exitInterrupted
		}
		return exitOK
	case errors.Is(err, audio.ErrDeviceUnavailable):
		cli.PrintError(err.Error())
		return exitNoAudio
	default:
		cli.PrintError(err.Error())
		return exitOK
	}
}

// finish writes the optional session report and baseline dump.
func finish(cliArgs *CLI, settings config.Settings, backend renderer.Backend, loop *control.Loop) {
	if cliArgs.Config != "" {
		if err := config.DumpBaselines(cliArgs.Config+".learned", loop.Baselines()); err != nil {
			cli.PrintError(err.Error())
		}
	}
	if cliArgs.Logs {
		b := loop.Baselines()
		data := logging.ReportData{
			DeviceName: settings.DeviceName,
			Backend:    string(backend),
			Stats:      loop.Stats(),
			TargetDB:   b.TargetDB,
			Loud:       b.ThresholdLoud,
			Quiet:      b.ThresholdQuiet,
		}
		path := fmt.Sprintf("agc-session-%s.log", time.Now().Format("20060102-150405"))
		if err := logging.WriteReport(path, data); err != nil {
			cli.PrintError(err.Error())
		}
	}
}

// buildSettings layers defaults, the distance preset, the config file, and
// explicit flags, then validates.
func buildSettings(cliArgs *CLI) (config.Settings, error) {
	settings := config.Default()
	if cliArgs.Distance != nil {
		settings = config.ForDistance(*cliArgs.Distance)
	}

	if cliArgs.Config != "" {
		var err error
		settings, err = config.Load(cliArgs.Config, settings)
		if err != nil {
			return settings, err
		}
	}

	if cliArgs.Device != nil {
		settings.DeviceName = *cliArgs.Device
	}
	if cliArgs.DeviceIndex != nil {
		settings.DeviceIndex = *cliArgs.DeviceIndex
	}
	if cliArgs.VolumeMin != nil {
		settings.VolumeMin = *cliArgs.VolumeMin
	}
	if cliArgs.VolumeMax != nil {
		settings.VolumeMax = *cliArgs.VolumeMax
	}
	if cliArgs.VolumeBaselineMax != nil {
		settings.VolumeBaselineMax = *cliArgs.VolumeBaselineMax
	}
	if cliArgs.ThresholdLoud != nil {
		settings.ThresholdLoud = *cliArgs.ThresholdLoud
	}
	if cliArgs.ThresholdQuiet != nil {
		settings.ThresholdQuiet = *cliArgs.ThresholdQuiet
	}
	if cliArgs.TargetDb != nil {
		settings.TargetDB = *cliArgs.TargetDb
	}
	if cliArgs.Step != nil {
		settings.AdjustmentStep = *cliArgs.Step
	}

	return settings, settings.Validate()
}

// openSource builds the audio source and reconciles the sample rate for
// file replay.
func openSource(cliArgs *CLI, settings config.Settings) (audio.Source, config.Settings, int) {
	if cliArgs.InputWav != "" {
		src, err := audio.NewWAVSource(cliArgs.InputWav, settings.WindowSize(), true)
		if err != nil {
			cli.PrintError(err.Error())
			return nil, settings, exitNoAudio
		}
		if src.Silent() {
			cli.PrintError(fmt.Sprintf("%s contains no signal", cliArgs.InputWav))
		}
		settings.SampleRate = src.SampleRate()
		return src, settings, exitOK
	}

	src := audio.NewCapture(settings.DeviceIndex, settings.SampleRate, settings.WindowSize())
	return src, settings, exitOK
}

func listDevices() int {
	devices, err := audio.ListDevices()
	if err != nil {
		cli.PrintError(err.Error())
		return exitNoAudio
	}

	fmt.Println(cli.TitleStyle.Render("Audio input devices"))
	for _, d := range devices {
		marker := " "
		if d.Default {
			marker = "*"
		}
		fmt.Printf(" %s [%2d] %s (%d ch, %.0f Hz)\n", marker, d.Index, d.Name, d.Channels, d.SampleRate)
	}
	return exitOK
}
