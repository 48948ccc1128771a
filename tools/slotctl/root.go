package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/slotwise/slotwise/libs/auth"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	keyAPI       = "api"
	keyNotifyAPI = "notify_api"
	keyToken     = "token"
	keySecret    = "secret"
	keyWorkspace = "workspace"
	keyTimeout   = "timeout"
	keyRole      = "role"
)

// app carries one invocation's resolved configuration.
type app struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	var configFile string

	root := &cobra.Command{
		Use:           "slotctl",
		Short:         "Operate Slotwise appointment negotiations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd, configFile)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file (default: ./slotctl.yaml or ~/.config/slotctl/slotctl.yaml)")
	pf.String(keyAPI, "http://localhost:8081", "appointment-service base url")
	pf.String("notify-api", "http://localhost:8085", "notification-service base url")
	pf.String(keyToken, "", "bearer token; minted from --secret when empty")
	pf.String(keySecret, "", "HS256 secret used to mint a token")
	pf.StringP(keyWorkspace, "w", "", "workspace id")
	pf.String(keyRole, auth.RoleOwner, "role for minted tokens: owner|admin|staff|customer")
	pf.Duration(keyTimeout, 10*time.Second, "http timeout")

	root.AddCommand(
		newTokenCmd(a),
		newProposeCmd(a),
		newActionCmd(a, "confirm", "Accept the counterparty's proposal", "/api/appointments/confirm-reschedule"),
		newActionCmd(a, "decline", "Reject the counterparty's proposal", "/api/appointments/decline-reschedule"),
		newActionCmd(a, "acknowledge", "Clear the customer's response", "/api/appointments/acknowledge-reschedule"),
		newActionCmd(a, "confirm-booking", "Move a pending booking to confirmed", "/api/appointments/confirm"),
		newCancelCmd(a),
		newPendingCmd(a),
		newGridCmd(a),
		newNotificationsCmd(a),
	)
	return root
}

func (a *app) load(cmd *cobra.Command, configFile string) error {
	v := a.v
	v.SetEnvPrefix("SLOTCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	flags := cmd.Flags()
	for key, flag := range map[string]string{
		keyAPI: keyAPI, keyNotifyAPI: "notify-api", keyToken: keyToken, keySecret: keySecret,
		keyWorkspace: keyWorkspace, keyRole: keyRole, keyTimeout: keyTimeout,
	} {
		if f := flags.Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("slotctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/slotctl")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func (a *app) workspace() (string, error) {
	ws := strings.TrimSpace(a.v.GetString(keyWorkspace))
	if ws == "" {
		return "", errors.New("workspace is required (--workspace or SLOTCTL_WORKSPACE)")
	}
	return ws, nil
}

// bearer returns the configured token or mints one from the shared secret.
func (a *app) bearer(appointmentID string) (string, error) {
	if tok := strings.TrimSpace(a.v.GetString(keyToken)); tok != "" {
		return tok, nil
	}
	secret := a.v.GetString(keySecret)
	if secret == "" {
		return "", errors.New("either --token or --secret is required")
	}
	ws, err := a.workspace()
	if err != nil {
		return "", err
	}
	return mint(secret, ws, a.v.GetString(keyRole), appointmentID, time.Hour)
}

func mint(secret, workspaceID, role, appointmentID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := auth.Claims{
		Sub:         "slotctl",
		WorkspaceID: workspaceID,
		Role:        role,
		Iat:         now.Unix(),
		Exp:         now.Add(ttl).Unix(),
	}
	if role == auth.RoleCustomer {
		if appointmentID == "" {
			return "", errors.New("customer tokens need an appointment id")
		}
		claims.AppointmentID = appointmentID
	}
	return auth.SignHS256(claims, secret)
}
