// Package main 提供运维用的命令行工具，用于初始化管理员账号和重置密码。
package main

import (
	"os"

	"praivio-go/internal/config"
	"praivio-go/internal/model"
	"praivio-go/internal/repository"
	"praivio-go/pkg/database"
)

// openUserRepository 按配置文件连接数据库，迁移表结构后返回用户仓库。
func openUserRepository(configPath string) (repository.UserRepository, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db, model.AllModels()...); err != nil {
		return nil, err
	}
	return repository.NewUserRepository(db), nil
}

func main() {
	if err := newRootCmd(openUserRepository).Execute(); err != nil {
		os.Exit(1)
	}
}
