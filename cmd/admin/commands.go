package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"praivio-go/internal/model"
	"praivio-go/internal/repository"
	"praivio-go/internal/service"
)

const (
	minPasswordLength   = 8
	defaultOrganization = "Demo Organisation"
)

// repoOpener 根据配置文件路径打开用户仓库。
type repoOpener func(configPath string) (repository.UserRepository, error)

func newRootCmd(open repoOpener) *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "praivio-admin",
		Short:         "Praivio 运维工具：管理员账号和密码维护",
		SilenceUsage:  true,
	}
	defaultPath := os.Getenv("PRAIVIO_CONFIG")
	if defaultPath == "" {
		defaultPath = "./configs/config.yaml"
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultPath, "配置文件路径")

	repo := func() (repository.UserRepository, error) {
		return open(configPath)
	}
	rootCmd.AddCommand(newCreateAdminCmd(repo), newResetPasswordCmd(repo), newListUsersCmd(repo))
	return rootCmd
}

func newCreateAdminCmd(repo func() (repository.UserRepository, error)) *cobra.Command {
	var username, email, password, organization string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "创建一个 admin 角色的用户",
		RunE: func(cmd *cobra.Command, args []string) error {
			username = strings.TrimSpace(username)
			if username == "" || strings.TrimSpace(email) == "" {
				return errors.New("--username 和 --email 不能为空")
			}
			pw, err := resolvePassword(cmd, password)
			if err != nil {
				return err
			}

			users, err := repo()
			if err != nil {
				return fmt.Errorf("连接数据库失败: %w", err)
			}
			if _, err := users.FindByUsername(username); err == nil {
				return fmt.Errorf("用户 '%s' 已存在", username)
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			u, err := service.NewUserRecord(username, email, pw, model.RoleAdmin, organization)
			if err != nil {
				return err
			}
			if err := users.Create(u); err != nil {
				return fmt.Errorf("创建用户失败: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "管理员 '%s' 创建成功 (ID %d, 组织 %s)\n", u.Username, u.ID, u.Organization)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "用户名")
	cmd.Flags().StringVar(&email, "email", "", "邮箱")
	cmd.Flags().StringVar(&password, "password", "", "密码，为空时从标准输入读取")
	cmd.Flags().StringVar(&organization, "organization", defaultOrganization, "所属组织")
	return cmd
}

func newResetPasswordCmd(repo func() (repository.UserRepository, error)) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "reset-password <username>",
		Short: "重置用户密码并重新启用账号",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := resolvePassword(cmd, password)
			if err != nil {
				return err
			}
			users, err := repo()
			if err != nil {
				return fmt.Errorf("连接数据库失败: %w", err)
			}
			u, err := users.FindByUsername(strings.TrimSpace(args[0]))
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("用户 '%s' 不存在", args[0])
			}
			if err != nil {
				return err
			}
			if err := service.SetPassword(u, pw); err != nil {
				return err
			}
			u.IsActive = true
			if err := users.Update(u); err != nil {
				return fmt.Errorf("保存用户失败: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "用户 '%s' 的密码已重置\n", u.Username)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "新密码，为空时从标准输入读取")
	return cmd
}

func newListUsersCmd(repo func() (repository.UserRepository, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "list-users",
		Short: "列出全部用户",
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := repo()
			if err != nil {
				return fmt.Errorf("连接数据库失败: %w", err)
			}
			all, err := users.FindAll()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tROLE\tORGANIZATION\tACTIVE")
			for _, u := range all {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%t\n", u.ID, u.Username, u.Email, u.Role, u.Organization, u.IsActive)
			}
			return w.Flush()
		},
	}
}

// resolvePassword 优先使用 flag 中的密码，否则从标准输入读取两行（密码和确认）。
func resolvePassword(cmd *cobra.Command, flagValue string) (string, error) {
	pw := flagValue
	if pw == "" {
		r := bufio.NewReader(cmd.InOrStdin())
		fmt.Fprint(cmd.OutOrStdout(), "Password: ")
		first, err := readLine(r)
		if err != nil {
			return "", err
		}
		fmt.Fprint(cmd.OutOrStdout(), "Confirm password: ")
		second, err := readLine(r)
		if err != nil {
			return "", err
		}
		if first != second {
			return "", errors.New("两次输入的密码不一致")
		}
		pw = first
	}
	if len(pw) < minPasswordLength {
		return "", fmt.Errorf("密码长度至少为 %d 个字符", minPasswordLength)
	}
	return pw, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("读取密码失败: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
