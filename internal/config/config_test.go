package config

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8000, Mode: "release"},
		Auth: AuthConfig{
			KeycloakURL: "http://keycloak:8080",
			Realm:       "myrealm",
			ClientID:    "ai-foundry-chat-app",
			Audience:    "account",
			KeyCacheTTL: 5 * time.Minute,
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	Convey("Validate 检查服务与认证配置", t, func() {
		cfg := validConfig()

		Convey("完整配置通过", func() {
			So(cfg.Validate(), ShouldBeNil)
		})

		Convey("端口非法", func() {
			cfg.Server.Port = 70000
			So(cfg.Validate(), ShouldNotBeNil)
		})

		Convey("模式非法", func() {
			cfg.Server.Mode = "prod"
			So(cfg.Validate(), ShouldNotBeNil)
		})

		Convey("开启认证时 realm 必填", func() {
			cfg.Auth.Realm = ""
			So(cfg.Validate(), ShouldNotBeNil)
		})

		Convey("开启认证时公钥缓存时间必须为正", func() {
			cfg.Auth.KeyCacheTTL = 0
			So(cfg.Validate(), ShouldNotBeNil)
		})

		Convey("关闭认证时不检查 Keycloak 配置", func() {
			cfg.Auth = AuthConfig{Disabled: true}
			So(cfg.Validate(), ShouldBeNil)
		})
	})
}

func TestAuthConfig_Issuer(t *testing.T) {
	Convey("Issuer 默认使用 keycloak_url", t, func() {
		a := AuthConfig{KeycloakURL: "http://keycloak:8080", Realm: "myrealm"}
		So(a.Issuer(), ShouldEqual, "http://keycloak:8080/realms/myrealm")
		So(a.RealmURL(), ShouldEqual, "http://keycloak:8080/realms/myrealm")

		Convey("配置 issuer_url 时 iss 与发现地址分离", func() {
			a.IssuerURL = "https://sso.example.com"
			So(a.Issuer(), ShouldEqual, "https://sso.example.com/realms/myrealm")
			So(a.RealmURL(), ShouldEqual, "http://keycloak:8080/realms/myrealm")
		})
	})
}
