package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lgn-platform/lgn-api/internal/loadtest"
)

func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:8080", "Base URL of the server to test")
		profile   = flag.String("profile", "light", "Load profile: light, medium, heavy, stress")
		rps       = flag.Int("rps", 0, "Custom requests per second (overrides profile)")
		duration  = flag.Duration("duration", 0, "Custom test duration (overrides profile)")
		readRatio = flag.Float64("read-ratio", 0, "Read/write ratio 0.0-1.0 (overrides profile)")
		noRamp    = flag.Bool("no-ramp", false, "Disable ramp-up/ramp-down (instant start/stop)")
		token     = flag.String("token", os.Getenv("LGN_TOKEN"), "Access token (see cmd/gentoken)")
		email     = flag.String("email", os.Getenv("LGN_EMAIL"), "Login email, used when no token is given")
		password  = flag.String("password", os.Getenv("LGN_PASSWORD"), "Login password")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tester := loadtest.NewLoadTester(*baseURL, os.Stdout)
	switch {
	case *token != "":
		tester.WithToken(*token)
	case *email != "":
		if err := tester.Login(ctx, *email, *password); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "Warning: no credentials, /api and /group requests will be rejected")
	}

	config, ok := loadtest.LoadProfiles[loadtest.LoadProfile(*profile)]
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown profile: %s\n", *profile)
		os.Exit(1)
	}
	if *rps > 0 {
		config.RequestsPerSecond = *rps
	}
	if *duration > 0 {
		config.Duration = *duration
	}
	if *readRatio > 0 {
		config.ReadWriteRatio = *readRatio
	}
	if *noRamp {
		config.RampUpTime = 0
		config.RampDownTime = 0
	}

	stats, err := tester.RunCustom(ctx, config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(stats.Report())
}
