package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/mstarongithub/twm/backend"
	"github.com/mstarongithub/twm/backend/headless"
	"github.com/mstarongithub/twm/backend/x11"
	"github.com/mstarongithub/twm/compositor"
	"github.com/mstarongithub/twm/config"
	"github.com/mstarongithub/twm/events"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const broadcastBuffer = 256

func fatal(msg string, err error) {
	fmt.Printf("error %s: %s\n", msg, err)
	os.Exit(1)
}

func newBackend(conf *config.Config) (backend.Backend, error) {
	output := conf.NewOutput()
	switch conf.Backend {
	case config.BackendHeadless:
		return headless.New(output), nil
	default:
		return x11.New(output, "twm - "+output.Name())
	}
}

func wlMain(conf *config.Config) {
	back, err := newBackend(conf)
	if err != nil {
		fatal("initializing backend", err)
	}
	defer func() {
		if err := back.Close(); err != nil {
			logrus.WithError(err).Warnln("Closing backend failed")
		}
	}()
	logrus.WithFields(logrus.Fields{
		"backend": conf.Backend,
		"output":  back.Output().Name(),
		"size":    back.WindowSize(),
	}).Infoln("Backend ready")

	broadcast := events.NewBroadcast(broadcastBuffer)
	defer broadcast.Close()

	sched, err := compositor.NewScheduler(compositor.SchedulerOptions{
		State: compositor.Options{
			Output:       back.Output(),
			Sink:         events.Multi{events.LogSink{Level: logrus.DebugLevel}, broadcast},
			ScrollFactor: conf.ScrollDiscreteFactor,
			Damage:       conf.DamageMode(),
			Background:   conf.BackgroundColor(),
			RepeatRate:   conf.Keyboard.RepeatRate,
			RepeatDelay:  conf.Keyboard.RepeatDelay,
		},
		Input:         back,
		Renderer:      back,
		SocketDir:     conf.SocketDir,
		FrameInterval: conf.FrameInterval(),
	})
	if err != nil {
		fatal("initializing compositor", err)
	}
	socket, err := sched.Listen()
	if err != nil {
		fatal("opening client socket", err)
	}
	logrus.WithField("socket", socket).Infoln("Running compositor")

	switch conf.StartType {
	case config.START_REPL:
		go replRunner(sched, broadcast)
	case config.START_SINGLE_COMMAND:
		if conf.StartCommand != nil {
			logrus.Infoln(runCommand(*conf.StartCommand, os.Stdout))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()
	if err = sched.Run(ctx); err != nil {
		logrus.WithError(err).Errorln("Event loop failed")
	}
}
