// Command cshusers manages CSH user data files offline, the Go
// equivalent of the reference implementation's users/main.py: a set of
// subcommands layered over the users file without requiring a running
// server.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cubeflix/csh/internal/userstore"
)

const (
	progName    = "cshusers"
	description = "cshusers manages CSH user data files."
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     progName,
		Short:   description,
		Version: "1.3.3",
	}
	root.AddCommand(newAddCmd(), newGetCmd(), newEditCmd(), newRemoveCmd(), newNewCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR IN MAIN: ["+err.Error()+"]")
		os.Exit(1)
	}
}

func newAddCmd() *cobra.Command {
	var username, password, permissions string
	cmd := &cobra.Command{
		Use:   "add <file>",
		Short: "Add a user.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			perm, err := parsePermission(permissions)
			if err != nil {
				return err
			}
			store, err := userstore.Open(args[0])
			if err != nil {
				return err
			}
			if err := store.Create(username, password, perm); err != nil {
				return err
			}
			fmt.Println("SUCESSFULLY CREATED USER: [" + username + "]")
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "The username for the new user.")
	cmd.Flags().StringVarP(&password, "password", "p", "", "The password for the new user.")
	cmd.Flags().StringVarP(&permissions, "permissions", "r", "", "The permissions for the new user (r, w, or a).")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagRequired("password")
	cmd.MarkFlagRequired("permissions")
	return cmd
}

func newGetCmd() *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "get <file>",
		Short: "Get information on a user.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := userstore.Open(args[0])
			if err != nil {
				return err
			}
			user, ok := store.Get(username)
			if !ok {
				return fmt.Errorf("user does not exist")
			}
			cmd.Println("USER [" + username + "]:")
			cmd.Println("    HASH [" + user.PasswordHash + "]")
			cmd.Println("    PERMISSIONS [" + strings.ToUpper(string(user.Permissions)) + "]")
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "The username to get information on.")
	cmd.MarkFlagRequired("username")
	return cmd
}

func newEditCmd() *cobra.Command {
	var username, password, permissions string
	cmd := &cobra.Command{
		Use:   "edit <file>",
		Short: "Edit a user's information.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := userstore.Open(args[0])
			if err != nil {
				return err
			}
			if !store.Exists(username) {
				return fmt.Errorf("user does not exist")
			}

			patch := map[string]any{}
			if password != "" {
				patch["password"] = password
			}
			if permissions != "" {
				if _, err := parsePermission(permissions); err != nil {
					return err
				}
				patch["permissions"] = permissions
			}
			if err := store.Update(username, patch); err != nil {
				return err
			}
			fmt.Println("SUCESSFULLY EDITED USER: [" + username + "]")
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "The username to edit.")
	cmd.Flags().StringVarP(&password, "password", "p", "", "The new password for the user.")
	cmd.Flags().StringVarP(&permissions, "permissions", "r", "", "The new permissions for the user (r, w, or a).")
	cmd.MarkFlagRequired("username")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "remove <file>",
		Short: "Remove a user.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := userstore.Open(args[0])
			if err != nil {
				return err
			}
			if !store.Exists(username) {
				return fmt.Errorf("user does not exist")
			}
			if err := store.Delete(username); err != nil {
				return err
			}
			fmt.Println("SUCESSFULLY REMOVED USER: [" + username + "]")
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "The username to remove.")
	cmd.MarkFlagRequired("username")
	return cmd
}

func newNewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new <file>",
		Short: "Make a new users file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.WriteFile(args[0], []byte("{}"), 0o600); err != nil {
				return err
			}
			fmt.Println("SUCESSFULLY CREATED NEW USERS FILE: [" + args[0] + "]")
			return nil
		},
	}
}

func parsePermission(p string) (userstore.Permission, error) {
	switch userstore.Permission(p) {
	case userstore.PermRead, userstore.PermWrite, userstore.PermAdmin:
		return userstore.Permission(p), nil
	default:
		return "", fmt.Errorf("permissions must be either 'r', 'w', or 'a'")
	}
}
