// Package config handles loading and accessing application configuration
// using Viper, supporting environment variables and config files.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServicesConfig names the provider backing each pluggable service the call
// orchestrator depends on. Each entry is a ProviderConfig so the same
// Provider/APIKey/Model/BaseURL/Timeout/Options shape covers STT, TTS,
// transport, and every LLM role.
type ServicesConfig struct {
	STT           ProviderConfig `mapstructure:"stt"`
	LLM           ProviderConfig `mapstructure:"llm"`
	TTS           ProviderConfig `mapstructure:"tts"`
	Transport     ProviderConfig `mapstructure:"transport"`
	ClassifierLLM ProviderConfig `mapstructure:"classifier_llm"`
	FallbackLLM   ProviderConfig `mapstructure:"fallback_llm"`
}

// TriageConfig controls the 3-way call classifier (conversation/IVR/voicemail).
type TriageConfig struct {
	Enabled                 bool          `mapstructure:"enabled"`
	VoicemailResponseDelay  time.Duration `mapstructure:"voicemail_response_delay"`
}

// OutputValidatorConfig controls the post-LLM safety screen on assistant text.
type OutputValidatorConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// SafetyMonitorsConfig controls the EMERGENCY/STAFF_REQUEST classifier that
// runs in parallel with the active conversation, and the output validator
// that screens assistant responses before they reach TTS.
type SafetyMonitorsConfig struct {
	Enabled              bool                  `mapstructure:"enabled"`
	AutoTransfer         bool                  `mapstructure:"auto_transfer"`
	EmergencyMessage     string                `mapstructure:"emergency_message"`
	UnsafeOutputMessage  string                `mapstructure:"unsafe_output_message"`
	OutputValidator      OutputValidatorConfig `mapstructure:"output_validator"`
	SafetyLLM            ProviderConfig        `mapstructure:"safety_llm"`
}

// ColdTransferConfig lists the SIP endpoints a call can be transferred to.
type ColdTransferConfig struct {
	StaffNumber   string `mapstructure:"staff_number"`
	BillingNumber string `mapstructure:"billing_number"`
	MedicalNumber string `mapstructure:"medical_number"`
}

// Config holds all configuration for the voice-agent orchestrator. Tags are
// used by Viper to map config file keys and environment variables.
type Config struct {
	Services      ServicesConfig       `mapstructure:"services"`
	Triage        TriageConfig         `mapstructure:"triage"`
	SafetyMonitors SafetyMonitorsConfig `mapstructure:"safety_monitors"`
	ColdTransfer  ColdTransferConfig   `mapstructure:"cold_transfer"`
}

// Cfg is the process-wide configuration populated by LoadConfig.
var Cfg Config

var envPlaceholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces every "${VAR}" placeholder in s with the value of the
// VAR environment variable, leaving the placeholder untouched if VAR is
// unset. Workflow service configs reference secrets this way so API keys
// never live in the config file itself.
func expandEnv(s string) string {
	return envPlaceholder.ReplaceAllStringFunc(s, func(m string) string {
		name := envPlaceholder.FindStringSubmatch(m)[1]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return m
	})
}

// expandProviderEnv resolves ${ENV_VAR} placeholders in the string fields of
// a ProviderConfig, matching the external interface's documented convention
// for injecting provider credentials via environment variables.
func expandProviderEnv(p *ProviderConfig) {
	p.Provider = expandEnv(p.Provider)
	p.APIKey = expandEnv(p.APIKey)
	p.Model = expandEnv(p.Model)
	p.BaseURL = expandEnv(p.BaseURL)
	for k, v := range p.Options {
		if s, ok := v.(string); ok {
			p.Options[k] = expandEnv(s)
		}
	}
}

// LoadConfig reads configuration from file and environment variables, then
// expands ${ENV_VAR} placeholders that appear in any service's provider
// config. configPaths adds additional directories to search for a
// "config.yaml" file.
func LoadConfig(configPaths ...string) error {
	v := viper.New()

	v.SetDefault("triage.enabled", true)
	v.SetDefault("triage.voicemail_response_delay", 2*time.Second)
	v.SetDefault("safety_monitors.enabled", true)
	v.SetDefault("safety_monitors.emergency_message", "If this is an emergency, please hang up and dial 911.")
	v.SetDefault("safety_monitors.unsafe_output_message", "I apologize, let me rephrase that.")
	v.SetDefault("safety_monitors.output_validator.enabled", true)
	v.SetDefault("services.llm.timeout", 30*time.Second)
	v.SetDefault("services.classifier_llm.timeout", 3*time.Second)
	v.SetDefault("services.fallback_llm.timeout", 30*time.Second)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/beluga-ai/")
	v.AddConfigPath("$HOME/.beluga-ai")
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults and environment variables.")
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("BELUGA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(&Cfg); err != nil {
		return fmt.Errorf("unable to decode config into struct: %w", err)
	}

	expandProviderEnv(&Cfg.Services.STT)
	expandProviderEnv(&Cfg.Services.LLM)
	expandProviderEnv(&Cfg.Services.TTS)
	expandProviderEnv(&Cfg.Services.Transport)
	expandProviderEnv(&Cfg.Services.ClassifierLLM)
	expandProviderEnv(&Cfg.Services.FallbackLLM)
	expandProviderEnv(&Cfg.SafetyMonitors.SafetyLLM)

	return nil
}
