package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/grassrootshq/clubassist/ai/assistant"
	"github.com/grassrootshq/clubassist/ai/llm"
	"github.com/grassrootshq/clubassist/ai/metrics"
	"github.com/grassrootshq/clubassist/internal/profile"
	"github.com/grassrootshq/clubassist/internal/version"
	"github.com/grassrootshq/clubassist/server"
	"github.com/grassrootshq/clubassist/server/auth"
	apiv1 "github.com/grassrootshq/clubassist/server/router/api/v1"
)

var rootCmd = &cobra.Command{
	Use:   "clubassist",
	Short: `A conversational assistant for grassroots club management. Ask about fixtures, players, products, and payments in plain language.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Try to load .env from the current directory; ignore when absent.
		_ = godotenv.Load()
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Version: version.GetCurrentVersion(viper.GetString("mode")),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			slog.Error("invalid configuration", "error", err)
			os.Exit(1)
		}

		llmService, err := llm.NewService(&llm.Config{
			Provider: instanceProfile.LLMProvider,
			Model:    instanceProfile.LLMModel,
			APIKey:   instanceProfile.LLMAPIKey,
			BaseURL:  instanceProfile.LLMBaseURL,
			Timeout:  instanceProfile.LLMTimeout,
		})
		if err != nil {
			slog.Error("failed to create LLM service", "error", err)
			os.Exit(1)
		}
		slog.Info("LLM service initialized",
			"provider", instanceProfile.LLMProvider,
			"model", instanceProfile.LLMModel,
		)

		gateway := assistant.NewGatewayClient(
			instanceProfile.GatewayBaseURL,
			time.Duration(instanceProfile.GatewayTimeout)*time.Second,
		)
		verifier := auth.NewSecureTokenVerifier(instanceProfile.IdentityProjectID)
		exporter := metrics.NewExporter()

		orchestrator := assistant.NewOrchestrator(
			llmService,
			gateway,
			assistant.NewCatalog(),
			assistant.WithRecorder(exporter),
		)

		apiService := apiv1.NewAPIV1Service(instanceProfile, verifier, orchestrator, exporter)

		ctx, cancel := context.WithCancel(context.Background())
		s, err := server.NewServer(ctx, instanceProfile, apiService)
		if err != nil {
			cancel()
			slog.Error("failed to create server", "error", err)
			return
		}

		c := make(chan os.Signal, 1)
		// Trigger graceful shutdown on SIGINT or SIGTERM.
		signal.Notify(c, terminationSignals...)

		if err := s.Start(ctx); err != nil {
			slog.Error("failed to start server", "error", err)
			cancel()
		}

		printGreetings(instanceProfile)

		go func() {
			<-c
			s.Shutdown(ctx)
			cancel()
		}()

		<-ctx.Done()
	},
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("port", 8088)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8088, "port of server")

	if err := viper.BindPFlag("mode", rootCmd.PersistentFlags().Lookup("mode")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("addr", rootCmd.PersistentFlags().Lookup("addr")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port")); err != nil {
		panic(err)
	}

	viper.SetEnvPrefix("clubassist")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("clubassist %s started successfully!\n", p.Version)
	fmt.Printf("Mode: %s\n", p.Mode)
	fmt.Printf("Gateway: %s\n", p.GatewayBaseURL)
	if len(p.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", p.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", p.Addr, p.Port)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
