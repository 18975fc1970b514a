// Package main is the operator CLI: schema migrations, roles, portal settings and meetings.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/srcf/lightbluetent/config"
	"github.com/srcf/lightbluetent/internal/auth"
	"github.com/srcf/lightbluetent/internal/bbb"
	"github.com/srcf/lightbluetent/internal/groups"
	"github.com/srcf/lightbluetent/internal/models"
	"github.com/srcf/lightbluetent/internal/rooms"
	"github.com/srcf/lightbluetent/internal/users"
	"github.com/srcf/lightbluetent/pkg/database"
)

type env struct {
	cfg    *config.Config
	logger *zap.Logger
	pool   *pgxpool.Pool
}

func (e *env) open(ctx context.Context) error {
	if e.pool != nil {
		return nil
	}
	pool, err := database.NewPostgresPool(ctx, e.cfg.Database.DSN(), database.PoolOptions{MaxConns: 2}, e.logger)
	if err != nil {
		return err
	}
	e.pool = pool
	return nil
}

func (e *env) meetings() (*bbb.Meetings, error) {
	if e.cfg.Meeting.URL == "" || e.cfg.Meeting.Secret == "" {
		return nil, errors.New("BIGBLUEBUTTON_URL and BIGBLUEBUTTON_SECRET are required")
	}
	client := bbb.NewClient(e.cfg.Meeting.URL, e.cfg.Meeting.Secret,
		e.cfg.Meeting.ConnectTimeout, e.cfg.Meeting.ReadTimeout, e.logger)
	return bbb.NewMeetings(client, e.cfg.App.PublicBaseURL, e.logger), nil
}

// meeting finds a room by id, or a group by short name with --group.
func (e *env) meeting(ctx context.Context, id string, group bool) (*bbb.Meeting, error) {
	meetings, err := e.meetings()
	if err != nil {
		return nil, err
	}
	if group {
		g, err := groups.NewRepository(e.pool).Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", id, err)
		}
		return meetings.Group(g, ""), nil
	}
	r, err := rooms.NewRepository(e.pool).Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("room %s: %w", id, err)
	}
	return meetings.Room(r, ""), nil
}

func main() {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.OutputPaths = []string{"stderr"}
	logger, _ := logConfig.Build()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	e := &env{cfg: cfg, logger: logger}
	defer func() {
		if e.pool != nil {
			e.pool.Close()
		}
	}()

	root := &cobra.Command{
		Use:           "lbt-admin",
		Short:         "Administer the events portal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(migrateCmd(e), roleCmd(e), settingCmd(e), meetingCmd(e), tokenCmd(e))

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		logger.Sync()
		os.Exit(1)
	}
}

func migrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := e.open(ctx); err != nil {
				return err
			}
			ran, err := database.Migrate(ctx, e.pool, e.logger)
			if err != nil {
				return err
			}
			if len(ran) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			}
			for _, name := range ran {
				fmt.Fprintln(cmd.OutOrStdout(), "applied", name)
			}
			return nil
		},
	}
}

func roleCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "set-role <crsid> <visitor|user|admin>",
		Short: "Change the role of a local user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role := models.RoleName(args[1])
			if _, ok := models.DefaultCapabilities[role]; !ok {
				return fmt.Errorf("unknown role %q", args[1])
			}
			ctx := cmd.Context()
			if err := e.open(ctx); err != nil {
				return err
			}
			err := users.NewRepository(e.pool).SetRole(ctx, args[0], role)
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("no user %s", args[0])
			}
			if err != nil {
				return err
			}
			e.logger.Info("role changed", zap.String("crsid", args[0]), zap.String("role", string(role)))
			return nil
		},
	}
}

func settingCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setting",
		Short: "Read or change portal settings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get <name>",
		Args:  cobra.ExactArgs(1),
		Short: "Print a setting",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := e.open(ctx); err != nil {
				return err
			}
			v, ok, err := users.NewRepository(e.pool).Setting(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s is not set", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}, &cobra.Command{
		Use:   "set <name> <value>",
		Args:  cobra.ExactArgs(2),
		Short: "Store a setting",
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == users.SettingSignups {
				if _, err := strconv.ParseBool(args[1]); err != nil {
					return fmt.Errorf("%s takes true or false", users.SettingSignups)
				}
			}
			ctx := cmd.Context()
			if err := e.open(ctx); err != nil {
				return err
			}
			return users.NewRepository(e.pool).PutSetting(ctx, args[0], args[1])
		},
	})
	return cmd
}

func meetingCmd(e *env) *cobra.Command {
	var group bool
	cmd := &cobra.Command{
		Use:   "meeting",
		Short: "Inspect or end the meeting of a room or group",
	}
	cmd.PersistentFlags().BoolVarP(&group, "group", "g", false, "treat the id as a group short name")

	status := &cobra.Command{
		Use:   "status <id>",
		Args:  cobra.ExactArgs(1),
		Short: "Report whether the meeting is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := e.open(ctx); err != nil {
				return err
			}
			m, err := e.meeting(ctx, args[0], group)
			if err != nil {
				return err
			}
			running, err := m.Status(ctx)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
				"id":      args[0],
				"running": running,
			})
		},
	}
	end := &cobra.Command{
		Use:   "end <id>",
		Args:  cobra.ExactArgs(1),
		Short: "End the meeting for everyone",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := e.open(ctx); err != nil {
				return err
			}
			m, err := e.meeting(ctx, args[0], group)
			if err != nil {
				return err
			}
			if err := m.End(ctx); err != nil {
				return err
			}
			e.logger.Info("meeting ended", zap.String("id", args[0]), zap.Bool("group", group))
			return nil
		},
	}
	cmd.AddCommand(status, end)
	return cmd
}

func tokenCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "token <crsid>",
		Args:  cobra.ExactArgs(1),
		Short: "Mint a principal token, for development without the sign-on gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			crsid := strings.ToLower(strings.TrimSpace(args[0]))
			if !rooms.ValidCRSid(crsid) {
				return fmt.Errorf("%q is not a CRSid", args[0])
			}
			token, err := auth.NewJWTService(e.cfg.JWT.Secret, e.cfg.JWT.ExpireHours).Generate(crsid)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}
