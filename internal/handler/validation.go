package handler

import (
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"praivio-go/internal/model"
	"praivio-go/pkg/log"
)

// RegisterValidators 在 gin 的校验引擎上注册自定义规则：
// notblank 要求字符串去掉空白后非空，userrole 要求是已知角色。
func RegisterValidators() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		log.Warnf("gin validator engine is not go-playground/validator, custom rules not registered")
		return
	}
	if err := v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	}); err != nil {
		log.Errorf("register notblank validator: %v", err)
	}
	if err := v.RegisterValidation("userrole", func(fl validator.FieldLevel) bool {
		return model.Role(fl.Field().String()).Valid()
	}); err != nil {
		log.Errorf("register userrole validator: %v", err)
	}
}
