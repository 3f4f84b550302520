package wizard

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
)

// WizardState represents the current step in the wizard flow
type WizardState int

const (
	StateWelcome WizardState = iota
	StateBackend
	StateConnectionDetails
	StateTestConnection
	StateSummary
	StateCreating
	StateDone
	StateError
)

// wizardModel holds the state for the Bubble Tea wizard
type wizardModel struct {
	state WizardState
	force bool

	// Directory the files are written to
	dir string

	env EnvironmentInput

	// Connection testing
	spinner              spinner.Model
	testingConnection    bool
	connectionTestResult string
	connectionError      error
	retryChoice          int // 0=retry, 1=edit, 2=save anyway

	inputs     []textinput.Model
	focusIndex int

	backendIndex int

	errors map[string]string

	result *InitResult
	err    error

	width  int
	height int
}

// EnvironmentInput holds user input for the environment written to
// ksmigrate.toml
type EnvironmentInput struct {
	Name    string
	Backend string // keyspace.Backend value

	// Cassandra fields
	Keyspace string
	Hosts    string

	// SQL fields
	URL string

	Username string
	Password string

	ScriptsLocation string
}

// InitResult contains the outcome of running the wizard
type InitResult struct {
	ConfigPath        string
	EnvFile           string
	ScriptsDir        string
	ScriptsDirCreated bool
	GitignoreUpdated  bool
}

// BackendOption is one choice on the backend selection screen
type BackendOption struct {
	ID          string
	DisplayName string
	Description string
	Icon        string
}

// Backends lists the keyspace stores the wizard can configure
var Backends = []BackendOption{
	{
		ID:          "cassandra",
		DisplayName: "Apache Cassandra",
		Description: "recommended, also ScyllaDB",
		Icon:        "👁",
	},
	{
		ID:          "postgres",
		DisplayName: "PostgreSQL",
		Description: "keyspace is a schema",
		Icon:        "🐘",
	},
	{
		ID:          "sqlite",
		DisplayName: "SQLite",
		Description: "simple, file-based",
		Icon:        "📁",
	},
	{
		ID:          "libsql",
		DisplayName: "libSQL/Turso",
		Description: "edge database",
		Icon:        "🌐",
	},
}
