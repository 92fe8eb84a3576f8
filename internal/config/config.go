package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/moka-guys/GeL-Reports/internal/domain/cases"
)

// Config is the immutable process configuration, read once at startup and
// passed explicitly into every component constructor.
type Config struct {
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	// GENAPP application server, used for LabKey lookups, exit questionnaire
	// submission and summary-of-findings retrieval.
	SSHHost           string `mapstructure:"SSH_HOST"`
	SSHUser           string `mapstructure:"SSH_USER"`
	SSHPassword       string `mapstructure:"SSH_PASSWORD"`
	SSHTimeoutSeconds int    `mapstructure:"SSH_TIMEOUT_SECONDS"`

	// Remote program paths on the application server.
	LabKeyScript            string `mapstructure:"LABKEY_SCRIPT"`
	ExitQuestionnaireScript string `mapstructure:"EXIT_QUESTIONNAIRE_SCRIPT"`
	SummaryFindingsScript   string `mapstructure:"SUMMARY_FINDINGS_SCRIPT"`
	SummaryRemoteDir        string `mapstructure:"SUMMARY_REMOTE_DIR"`

	// Local directories and files.
	CoverTemplatePath string `mapstructure:"COVER_TEMPLATE_PATH"`
	SourceReportDir   string `mapstructure:"SOURCE_REPORT_DIR"`
	OutputReportDir   string `mapstructure:"OUTPUT_REPORT_DIR"`
	SummaryOutputDir  string `mapstructure:"SUMMARY_OUTPUT_DIR"`
	DraftsDir         string `mapstructure:"DRAFTS_DIR"`

	// Moka table names. Defaults match the production schema; test and
	// mirror databases override them per deployment.
	TableNGSTest        string `mapstructure:"TABLE_NGSTEST"`
	TablePatients       string `mapstructure:"TABLE_PATIENTS"`
	TablePatientsLinked string `mapstructure:"TABLE_PATIENTS_LINKED"`
	TableGender         string `mapstructure:"TABLE_GENDER"`
	TableChecker        string `mapstructure:"TABLE_CHECKER"`
	TableItem           string `mapstructure:"TABLE_ITEM"`
	TableTestFile       string `mapstructure:"TABLE_TEST_FILE"`
	TableAuditLog       string `mapstructure:"TABLE_AUDIT_LOG"`
	TableSpecimens      string `mapstructure:"TABLE_SPECIMENS"`
	TableCharges        string `mapstructure:"TABLE_CHARGES"`

	// CIPAPIUser is the acting identity recorded as report checker/authoriser
	// and passed to the exit questionnaire submission.
	CIPAPIUser string `mapstructure:"CIP_API_USER"`

	// SummaryHeader is the optional header text printed on retrieved
	// summary-of-findings documents.
	SummaryHeader string `mapstructure:"SUMMARY_HEADER"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "production")
	v.SetDefault("DB_MAX_CONNS", 2)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("SSH_TIMEOUT_SECONDS", 300)
	v.SetDefault("LABKEY_SCRIPT", "/home/mokaguys/Documents/LabKey/jellypy_labkey/LabKey.py")
	v.SetDefault("EXIT_QUESTIONNAIRE_SCRIPT", "/home/mokaguys/Apps/100K_exit_questionnaire/exit_questionnaire.py")
	v.SetDefault("SUMMARY_FINDINGS_SCRIPT", "/home/mokaguys/Apps/100K_summary_findings_pdf/summary_findings.py")
	v.SetDefault("SUMMARY_REMOTE_DIR", "/home/mokaguys/Documents/100K_summary_findings_pdf")
	v.SetDefault("COVER_TEMPLATE_PATH", "templates/gel_cover_report_template.html")
	v.SetDefault("SOURCE_REPORT_DIR", "technical_reports")
	v.SetDefault("OUTPUT_REPORT_DIR", "reports_to_send")
	v.SetDefault("SUMMARY_OUTPUT_DIR", "summary_findings")
	v.SetDefault("DRAFTS_DIR", "drafts")

	tables := cases.DefaultTables()
	v.SetDefault("TABLE_NGSTEST", tables.NGSTest)
	v.SetDefault("TABLE_PATIENTS", tables.Patients)
	v.SetDefault("TABLE_PATIENTS_LINKED", tables.PatientsLinked)
	v.SetDefault("TABLE_GENDER", tables.Gender)
	v.SetDefault("TABLE_CHECKER", tables.Checker)
	v.SetDefault("TABLE_ITEM", tables.Item)
	v.SetDefault("TABLE_TEST_FILE", tables.TestFile)
	v.SetDefault("TABLE_AUDIT_LOG", tables.AuditLog)
	v.SetDefault("TABLE_SPECIMENS", tables.Specimens)
	v.SetDefault("TABLE_CHARGES", tables.Charges)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("SSH_HOST")
	v.BindEnv("SSH_USER")
	v.BindEnv("SSH_PASSWORD")
	v.BindEnv("SSH_TIMEOUT_SECONDS")
	v.BindEnv("LABKEY_SCRIPT")
	v.BindEnv("EXIT_QUESTIONNAIRE_SCRIPT")
	v.BindEnv("SUMMARY_FINDINGS_SCRIPT")
	v.BindEnv("SUMMARY_REMOTE_DIR")
	v.BindEnv("COVER_TEMPLATE_PATH")
	v.BindEnv("SOURCE_REPORT_DIR")
	v.BindEnv("OUTPUT_REPORT_DIR")
	v.BindEnv("SUMMARY_OUTPUT_DIR")
	v.BindEnv("DRAFTS_DIR")
	v.BindEnv("TABLE_NGSTEST")
	v.BindEnv("TABLE_PATIENTS")
	v.BindEnv("TABLE_PATIENTS_LINKED")
	v.BindEnv("TABLE_GENDER")
	v.BindEnv("TABLE_CHECKER")
	v.BindEnv("TABLE_ITEM")
	v.BindEnv("TABLE_TEST_FILE")
	v.BindEnv("TABLE_AUDIT_LOG")
	v.BindEnv("TABLE_SPECIMENS")
	v.BindEnv("TABLE_CHARGES")
	v.BindEnv("CIP_API_USER")
	v.BindEnv("SUMMARY_HEADER")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// MokaTables assembles the repository table mapping from configuration.
func (c *Config) MokaTables() cases.Tables {
	return cases.Tables{
		NGSTest:        c.TableNGSTest,
		Patients:       c.TablePatients,
		PatientsLinked: c.TablePatientsLinked,
		Gender:         c.TableGender,
		Checker:        c.TableChecker,
		Item:           c.TableItem,
		TestFile:       c.TableTestFile,
		AuditLog:       c.TableAuditLog,
		Specimens:      c.TableSpecimens,
		Charges:        c.TableCharges,
	}
}

// SSHTimeout returns the bounded duration applied to each remote dial and
// command.
func (c *Config) SSHTimeout() time.Duration {
	return time.Duration(c.SSHTimeoutSeconds) * time.Second
}

// ValidateRemote checks the SSH settings needed by reconciliation and the
// remote jobs. It is only called when a run actually needs the remote channel,
// so a cover-only run works without server credentials.
func (c *Config) ValidateRemote() error {
	if c.SSHHost == "" {
		return fmt.Errorf("SSH_HOST is required for remote operations")
	}
	if c.SSHUser == "" {
		return fmt.Errorf("SSH_USER is required for remote operations")
	}
	if c.SSHPassword == "" {
		return fmt.Errorf("SSH_PASSWORD is required for remote operations")
	}
	return nil
}
