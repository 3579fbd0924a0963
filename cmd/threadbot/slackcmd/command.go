package slackcmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/quailyquaily/threadbot/integration"
	"github.com/quailyquaily/threadbot/internal/channelruntime/slack"
	"github.com/quailyquaily/threadbot/internal/chathistory"
	"github.com/quailyquaily/threadbot/internal/configutil"
	"github.com/quailyquaily/threadbot/internal/healthcheck"
	"github.com/quailyquaily/threadbot/internal/slackapi"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newSlackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slack",
		Short: "Run the Slack bot with Socket Mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			botToken := strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-bot-token", "slack.bot_token"))
			if botToken == "" {
				return fmt.Errorf("missing slack.bot_token (set via --slack-bot-token or THREADBOT_SLACK_BOT_TOKEN)")
			}
			appToken := strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-app-token", "slack.app_token"))
			if appToken == "" {
				return fmt.Errorf("missing slack.app_token (set via --slack-app-token or THREADBOT_SLACK_APP_TOKEN)")
			}

			allowedTeams := slack.Allowlist(configutil.FlagOrViperStringArray(cmd, "slack-allowed-team-id", "slack.allowed_team_ids"))
			allowedChannels := slack.Allowlist(configutil.FlagOrViperStringArray(cmd, "slack-allowed-channel-id", "slack.allowed_channel_ids"))

			logger, err := loggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			httpClient := &http.Client{Timeout: 30 * time.Second}
			api := slackapi.New(httpClient, viper.GetString("slack.base_url"), botToken, appToken)
			auth, err := api.AuthTest(cmd.Context())
			if err != nil {
				return fmt.Errorf("slack auth.test: %w", err)
			}
			botUserID := strings.TrimSpace(auth.UserID)
			if botUserID == "" {
				return fmt.Errorf("slack auth.test returned empty user_id")
			}
			if len(allowedTeams) == 0 && strings.TrimSpace(auth.TeamID) != "" {
				allowedTeams[strings.TrimSpace(auth.TeamID)] = true
			}

			rt, err := newRuntime(cmd.Context(), integration.Config{
				Slack:  api,
				Logger: logger,
				Inspect: integration.InspectOptions{
					Request: configutil.FlagOrViperBool(cmd, "inspect-request", ""),
					Mode:    "slack",
				},
			})
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			handler := slack.NewHandler(api, rt.Responder, slack.HandlerOptions{
				Self:         chathistory.Identity{UserID: botUserID, BotID: strings.TrimSpace(auth.BotID)},
				HistoryLimit: configutil.FlagOrViperInt(cmd, "slack-history-limit", "slack.history_limit"),
				MaxTotal:     viper.GetInt("slack.max_message_chars"),
				MaxBlock:     viper.GetInt("slack.max_block_chars"),
				Logger:       logger,
			})
			dispatcher := slack.NewDispatcher(handler.Handle, slack.DispatcherOptions{
				MaxConcurrency: configutil.FlagOrViperInt(cmd, "slack-max-concurrency", "slack.max_concurrency"),
				TaskTimeout:    configutil.FlagOrViperDuration(cmd, "slack-task-timeout", "slack.task_timeout"),
				Logger:         logger,
			})

			healthListen := healthcheck.NormalizeListen(configutil.FlagOrViperString(cmd, "health-listen", "health.listen"))
			if healthListen != "" {
				if _, err := healthcheck.StartServer(cmd.Context(), logger, healthListen, "slack"); err != nil {
					logger.Warn("slack_health_server_start_error", "addr", healthListen, "error", err.Error())
				}
			}

			ctx := cmd.Context()
			logger.Info("slack_start",
				"bot_user_id", botUserID,
				"team_id", auth.TeamID,
				"allowed_teams", len(allowedTeams),
				"allowed_channels", len(allowedChannels),
			)
			err = slack.Serve(ctx, api, slack.ServeOptions{
				BotUserID:       botUserID,
				AllowedTeams:    allowedTeams,
				AllowedChannels: allowedChannels,
				Logger:          logger,
			}, func(ev slack.Event) {
				if err := dispatcher.Enqueue(ctx, ev); err != nil {
					logger.Warn("slack_enqueue_dropped", "channel_id", ev.ChannelID, "thread_ts", ev.ReplyThreadTS(), "error", err.Error())
				}
			})
			dispatcher.Wait()
			return err
		},
	}

	cmd.Flags().String("slack-bot-token", "", "Slack bot token (xoxb-...).")
	cmd.Flags().String("slack-app-token", "", "Slack app-level token for Socket Mode (xapp-...).")
	cmd.Flags().StringArray("slack-allowed-team-id", nil, "Allowed Slack team id(s). If empty, defaults to the bot's home team.")
	cmd.Flags().StringArray("slack-allowed-channel-id", nil, "Allowed Slack channel id(s). If empty, allows all channels in allowed teams.")
	cmd.Flags().Duration("slack-task-timeout", 0, "Per-message timeout (0 uses slack.task_timeout).")
	cmd.Flags().Int("slack-max-concurrency", 3, "Max number of Slack threads processed concurrently.")
	cmd.Flags().Int("slack-history-limit", 30, "Max thread messages sent to the model.")
	cmd.Flags().String("health-listen", "", "Serve /healthz on this address (host:port or port).")
	cmd.Flags().Bool("inspect-request", false, "Dump LLM request/response payloads to ./dump/slack_requests_YYYYMMDD_HHMMSS.md.")
	return cmd
}
