package config

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/rapidaai/callbridge/pkg/utils"
)

// Application config structure
type AppConfig struct {
	Name     string `mapstructure:"service_name" validate:"required"`
	Version  string `mapstructure:"version" validate:"required"`
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"required"`
	LogPath  string `mapstructure:"log_path"`

	// Vobiz carrier credentials. Both are required: every outbound call,
	// leg redirect and recording download authenticates with them.
	VobizAuthID    string `mapstructure:"vobiz_auth_id" validate:"required"`
	VobizAuthToken string `mapstructure:"vobiz_auth_token" validate:"required"`
	VobizAPIURL    string `mapstructure:"vobiz_api_url" validate:"required"`

	// Default outbound caller id, used when /start omits from_number.
	VobizPhoneNumber string `mapstructure:"vobiz_phone_number"`

	// PublicURL overrides request-derived host/protocol when the server
	// sits behind a tunnel or load balancer the carrier cannot introspect.
	PublicURL string `mapstructure:"public_url"`

	// Environment is "local" or "production". Production routes call
	// media to the fixed upstream relay instead of this server.
	Environment      string `mapstructure:"environment"`
	AgentName        string `mapstructure:"agent_name"`
	OrganizationName string `mapstructure:"organization_name"`

	// Human-agent transfer leg.
	TransferNumber       string `mapstructure:"transfer_number"`
	TransferAnnouncement string `mapstructure:"transfer_announcement"`

	// Spoken before the media stream opens.
	Greeting string `mapstructure:"greeting"`

	RecordingEnabled   bool   `mapstructure:"recording_enabled"`
	RecordingMaxLength int    `mapstructure:"recording_max_length"`
	RecordingsDir      string `mapstructure:"recordings_dir"`

	// Upstream conversational-bot WebSocket. When empty, accepted media
	// sessions are drained locally instead of relayed.
	BotWebsocketURL string `mapstructure:"bot_ws_url"`
}

// DeploymentEnvironment returns the parsed environment tag.
func (c *AppConfig) DeploymentEnvironment() utils.Environment {
	return utils.FromEnvironmentStr(c.Environment)
}

// ServiceHost is the production-only service-host tag carried on the
// relay WebSocket URL, derived from agent and organization naming.
func (c *AppConfig) ServiceHost() string {
	if c.AgentName == "" || c.OrganizationName == "" {
		return ""
	}
	return c.AgentName + "." + c.OrganizationName
}

// reading config and intializing configs for application
func InitConfig() (*viper.Viper, error) {
	vConfig := viper.NewWithOptions(viper.KeyDelimiter("__"))

	vConfig.AddConfigPath(".")
	vConfig.SetConfigName(".env")
	path := os.Getenv("ENV_PATH")
	if path != "" {
		log.Printf("env path %v", path)
		vConfig.SetConfigFile(path)
	}
	vConfig.SetConfigType("env")
	vConfig.AutomaticEnv()

	setDefault(vConfig)
	if err := vConfig.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		log.Printf("Reading from env varaibles.")
	}

	return vConfig, nil
}

func setDefault(v *viper.Viper) {
	// setting all default values
	// keeping watch on https://github.com/spf13/viper/issues/188

	v.SetDefault("SERVICE_NAME", "callbridge")
	v.SetDefault("VERSION", "0.0.1")
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 7860)
	v.SetDefault("LOG_LEVEL", "debug")
	v.SetDefault("LOG_PATH", "")

	v.SetDefault("VOBIZ_API_URL", "https://api.vobiz.ai")
	v.SetDefault("VOBIZ_PHONE_NUMBER", "")

	v.SetDefault("PUBLIC_URL", "")
	v.SetDefault("ENVIRONMENT", "local")
	v.SetDefault("AGENT_NAME", "")
	v.SetDefault("ORGANIZATION_NAME", "")

	v.SetDefault("TRANSFER_NUMBER", "")
	v.SetDefault("TRANSFER_ANNOUNCEMENT", "Please hold while we transfer you to a human agent.")
	v.SetDefault("GREETING", "Hello, you are connected to the assistant.")

	v.SetDefault("RECORDING_ENABLED", false)
	v.SetDefault("RECORDING_MAX_LENGTH", 3600)
	v.SetDefault("RECORDINGS_DIR", "recordings")

	v.SetDefault("BOT_WS_URL", "")
}

// Getting application config from viper
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var config AppConfig
	err := v.Unmarshal(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}

	// valdating the app config
	validate := validator.New()
	err = validate.Struct(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}
	return &config, nil
}
