package cmd

import (
	"context"
	"fmt"
	stdlog "log"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/profile-evaluator/internal/history"
	"github.com/spigell/profile-evaluator/internal/logger"
	"github.com/spigell/profile-evaluator/internal/prompt"
)

const terminalSessionID = "terminal"

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session in the terminal",
	Run: func(_ *cobra.Command, _ []string) {
		chat()
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func chat() {
	ctx := context.Background()

	log, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		stdlog.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		log.Fatal("getting a config", zap.Error(err))
	}

	pipeline, model, err := newPipeline(ctx, config, log)
	if err != nil {
		log.Fatal("building the evaluation pipeline", zap.Error(err))
	}

	knowledge, err := buildKnowledge(config.Chat)
	if err != nil {
		log.Fatal("loading chat knowledge", zap.Error(err))
	}

	maxTurns := history.DefaultMaxTurns
	if config.History != nil && config.History.MaxTurns > 0 {
		maxTurns = config.History.MaxTurns
	}
	store := history.NewMemoryStore(maxTurns)

	fmt.Printf("Chatting with %s. Type 'exit' or press Ctrl+C to quit.\n", model)

	input := promptui.Prompt{Label: "You"}

	for {
		message, err := input.Run()
		if err != nil {
			// Interrupt or EOF ends the session.
			return
		}

		message = strings.TrimSpace(message)
		if message == "" {
			continue
		}
		if strings.EqualFold(message, "exit") {
			return
		}

		turns, err := store.Get(ctx, terminalSessionID)
		if err != nil {
			log.Warn("reading session history failed", zap.Error(err))
		}

		block := ""
		if knowledge.Matches(message) {
			block = knowledge.Text
		}

		reply, err := pipeline.Generate(ctx, prompt.BuildChat(message, turns, block))
		if err != nil {
			log.Error("chat generation failed", zap.Error(err))
			continue
		}

		fmt.Printf("Bot: %s\n", reply)

		if err := store.Append(ctx, terminalSessionID, history.Turn{User: message, Bot: reply}); err != nil {
			log.Warn("storing turn failed", zap.Error(err))
		}
	}
}
