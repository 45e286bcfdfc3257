package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/peterh/liner"

	"github.com/vitalmind/agentmem/pkg/agent"
	"github.com/vitalmind/agentmem/pkg/agentmem"
	"github.com/vitalmind/agentmem/pkg/config"
	"github.com/vitalmind/agentmem/pkg/log"
	"github.com/vitalmind/agentmem/pkg/mem/semantic"
	"github.com/vitalmind/agentmem/pkg/tools"
)

// Constants for the command-line interface
const (
	cmdHelp         = "!help"
	cmdQuit         = "!quit"
	cmdUser         = "!user"
	cmdSession      = "!session"
	cmdLearn        = "!learn"
	cmdContext      = "!context"
	cmdClearSession = "!clear-session"
	cmdClearUser    = "!clear-user"
	cmdHealth       = "!health"
)

// Command-line help text
const helpText = `
AgentMem Example Agent - Command Reference:
-------------------------------------------
!help                 - Show this help message
!user <id>            - Set the current user ID
!session <id>         - Set the current session ID
!learn <fact>         - Bulk-load a knowledge fact into semantic memory
!context <query>      - Show the memory context a query would retrieve
!clear-session        - Drop the current session's conversation log
!clear-user           - Remove all episodic memories for the current user
!health               - Check backend health and breaker state
!quit                 - Exit the application

Notes:
- Regular text input is processed as an agent turn
- Tab completion is available for commands
- Use up/down arrows for command history`

// historyFile is the file where command history is stored
const historyFile = ".agentmem_history"

func main() {
	// Pick up OPENAI_API_KEY and friends from a local .env if present
	_ = godotenv.Load()

	log.Setup(log.Config{
		Level:  log.WarnLevel,
		Format: log.TextFormat,
	})

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	registry := tools.NewRegistry()
	if err := registry.Register(tools.NewCurrentTimeTool()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to register tool: %v\n", err)
		os.Exit(1)
	}
	if err := registry.Register(tools.NewCalculatorTool()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to register tool: %v\n", err)
		os.Exit(1)
	}

	client, err := agentmem.New(cfg, registry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	runCLI(client, cfg)
}

// loadConfig looks for a config file in standard locations, falling back
// to defaults with mock providers.
func loadConfig() (*config.Config, error) {
	configPaths := []string{
		"./configs/config.yaml",
		"./config.yaml",
		"../configs/config.yaml",
	}

	for _, path := range configPaths {
		if _, statErr := os.Stat(path); statErr == nil {
			return config.LoadFromFile(path)
		}
	}

	cfg := config.Default()
	cfg.Backend.Type = "embedded"
	cfg.Backend.Embedded.Path = "./data/agentmem.db"
	if os.Getenv("OPENAI_API_KEY") != "" {
		cfg.Embedding.Provider = "openai"
		cfg.LLM.Provider = "openai"
	}
	return cfg, nil
}

// runCLI starts the command-line interface for user interaction
func runCLI(client *agentmem.Client, cfg *config.Config) {
	currentUser := "default-user"
	currentSession := "default-session"

	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetMultiLineMode(false)

	line.SetCompleter(func(line string) (c []string) {
		commands := []string{cmdHelp, cmdQuit, cmdUser, cmdSession, cmdLearn, cmdContext, cmdClearSession, cmdClearUser, cmdHealth}
		for _, cmd := range commands {
			if strings.HasPrefix(cmd, line) {
				c = append(c, cmd)
			}
		}
		return
	})

	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyFile); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Println("\n=== AgentMem Example Agent ===")
	fmt.Println("Backend:", cfg.Backend.Type)
	fmt.Println("LLM provider:", cfg.LLM.Provider)
	fmt.Printf("Current User: %s | Current Session: %s\n", currentUser, currentSession)
	fmt.Println("Type !help for available commands.")

	for {
		prompt := fmt.Sprintf("agentmem::%s@%s> ", currentUser, currentSession)
		input, err := line.Prompt(prompt)
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nGoodbye!")
				break
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		ctx := context.Background()

		switch {
		case input == cmdQuit:
			fmt.Println("Goodbye!")
			return

		case input == cmdHelp:
			fmt.Println(helpText)

		case strings.HasPrefix(input, cmdUser):
			arg := strings.TrimSpace(strings.TrimPrefix(input, cmdUser))
			if arg == "" {
				fmt.Println("Usage: !user <id>")
				continue
			}
			currentUser = arg
			fmt.Println("User set to:", currentUser)

		case strings.HasPrefix(input, cmdSession):
			arg := strings.TrimSpace(strings.TrimPrefix(input, cmdSession))
			if arg == "" {
				fmt.Println("Usage: !session <id>")
				continue
			}
			currentSession = arg
			fmt.Println("Session set to:", currentSession)

		case strings.HasPrefix(input, cmdLearn):
			arg := strings.TrimSpace(strings.TrimPrefix(input, cmdLearn))
			if arg == "" {
				fmt.Println("Usage: !learn <fact>")
				continue
			}
			loaded, err := client.LoadKnowledge(ctx, []semantic.Fact{{
				Category: "general",
				Fact:     arg,
				Source:   "operator",
			}})
			if err != nil {
				fmt.Printf("Error loading fact: %v\n", err)
				continue
			}
			fmt.Printf("Loaded %d fact(s) into semantic memory.\n", loaded)

		case strings.HasPrefix(input, cmdContext):
			arg := strings.TrimSpace(strings.TrimPrefix(input, cmdContext))
			if arg == "" {
				fmt.Println("Usage: !context <query>")
				continue
			}
			printContext(ctx, client, currentUser, currentSession, arg)

		case input == cmdClearSession:
			if err := client.ClearSession(ctx, currentSession); err != nil {
				fmt.Printf("Error clearing session: %v\n", err)
				continue
			}
			fmt.Println("Session cleared.")

		case input == cmdClearUser:
			removed, err := client.ClearUserMemory(ctx, currentUser)
			if err != nil {
				fmt.Printf("Error clearing user memory: %v\n", err)
				continue
			}
			fmt.Printf("Removed %d episodic memories.\n", removed)

		case input == cmdHealth:
			fmt.Printf("Backend healthy: %v | Breaker: %s\n", client.Healthy(ctx), client.BreakerState())

		default:
			result, err := client.ProcessTurn(ctx, currentUser, currentSession, input)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			fmt.Println(result.Response)
			if result.State == agent.StateAborted {
				fmt.Println("(turn hit the iteration cap)")
			}
			if len(result.ToolsUsed) > 0 {
				fmt.Printf("(tools: %s)\n", strings.Join(result.ToolsUsed, ", "))
			}
			if len(result.MemoryUnavailable) > 0 {
				fmt.Printf("(degraded, stores unavailable: %s)\n", strings.Join(result.MemoryUnavailable, ", "))
			}
		}
	}
}

func printContext(ctx context.Context, client *agentmem.Client, userID, sessionID, query string) {
	memCtx, err := client.RetrieveContext(ctx, userID, sessionID, query)
	if err != nil {
		fmt.Printf("Error retrieving context: %v\n", err)
		return
	}

	fmt.Printf("Short-term: %d messages, %d tokens (%.0f%% of budget)\n",
		memCtx.ContextStats.MessageCount,
		memCtx.ContextStats.TokenCount,
		memCtx.ContextStats.UsagePercent,
	)
	if memCtx.Episodic != nil && memCtx.Episodic.Summary != "" {
		fmt.Println(memCtx.Episodic.Summary)
	}
	if memCtx.Semantic != nil && memCtx.Semantic.Summary != "" {
		fmt.Println(memCtx.Semantic.Summary)
	}
	if memCtx.Suggestion != nil {
		fmt.Printf("Tool pattern: %s (confidence %.2f, recommended %v)\n",
			strings.Join(memCtx.Suggestion.ToolSequence, " -> "),
			memCtx.Suggestion.Confidence,
			memCtx.Suggestion.Recommended,
		)
	}
	if len(memCtx.Unavailable) > 0 {
		fmt.Printf("Unavailable stores: %s\n", strings.Join(memCtx.Unavailable, ", "))
	}
}
