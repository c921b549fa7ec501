package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/community-service/internal/session"
)

func newClient(cmd *cli.Command, store *fileStore) (*session.Client, error) {
	logger := zap.NewNop()
	if cmd.Bool("verbose") {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			return nil, err
		}
	}

	client := session.New(cmd.String("server"),
		session.WithLogger(logger),
		session.WithOnSessionExpired(func() {
			if err := store.Delete(); err != nil {
				logger.Warn("delete session file", zap.Error(err))
			}
			fmt.Fprintln(os.Stderr, "session expired, run `sessionctl login` again")
		}),
	)

	tokens, err := store.Load()
	if err != nil {
		return nil, err
	}
	client.SetTokens(tokens)
	return client, nil
}

func runLogin(ctx context.Context, cmd *cli.Command, email, password string) error {
	if password == "" {
		return errors.New("password is required (flag --password or SESSIONCTL_PASSWORD)")
	}
	store := newFileStore(cmd.String("session-file"))
	client, err := newClient(cmd, store)
	if err != nil {
		return err
	}

	user, err := client.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if err := store.Save(client.Tokens()); err != nil {
		return err
	}
	fmt.Printf("logged in as %s (%s)\n", user.ID, user.Role)
	return nil
}

func runRequest(ctx context.Context, cmd *cli.Command, method, path, data string) error {
	if path == "" {
		return errors.New("path argument is required")
	}
	store := newFileStore(cmd.String("session-file"))
	client, err := newClient(cmd, store)
	if err != nil {
		return err
	}
	if client.Tokens().AccessToken == "" {
		return session.ErrNotAuthenticated
	}

	var body io.Reader
	if data != "" {
		body = strings.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(cmd.String("server"), "/")+"/"+strings.TrimLeft(path, "/"), body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// tokens may have rotated during the call
	if err := store.Save(client.Tokens()); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "%s\n", resp.Status)
	if _, err := io.Copy(os.Stdout, resp.Body); err != nil {
		return err
	}
	fmt.Println()
	if resp.StatusCode >= http.StatusBadRequest {
		return cli.Exit("", 2)
	}
	return nil
}

func runLogout(ctx context.Context, cmd *cli.Command) error {
	store := newFileStore(cmd.String("session-file"))
	client, err := newClient(cmd, store)
	if err != nil {
		return err
	}
	logoutErr := client.Logout(ctx)
	if err := store.Delete(); err != nil {
		return err
	}
	if logoutErr != nil {
		return fmt.Errorf("logout: %w", logoutErr)
	}
	fmt.Println("logged out")
	return nil
}
