package storage

import "github.com/dmuraco3/NanoScale/pkg/types"

// Store is the durable store the orchestrator uses for all entities
// that must survive a restart.
type Store interface {
	// Servers
	CreateServer(server *types.Server) error
	GetServer(id string) (*types.Server, error)
	ListServers() ([]*types.Server, error)
	DeleteServer(id string) error

	// Join tokens
	PutJoinToken(token *types.JoinToken) error
	GetJoinToken(value string) (*types.JoinToken, error)
	DeleteJoinToken(value string) error
	ListJoinTokens() ([]*types.JoinToken, error)

	// Users
	CreateUser(user *types.User) error
	GetUserByUsername(username string) (*types.User, error)
	GetUser(id string) (*types.User, error)
	CountUsers() (int, error)

	// Projects
	CreateProject(project *types.Project) error
	GetProject(id string) (*types.Project, error)
	ListProjects() ([]*types.Project, error)
	ListProjectsByServer(serverID string) ([]*types.Project, error)
	UpdateProject(project *types.Project) error
	DeleteProject(id string) error
	IsProjectPortInUse(port int) (bool, error)
	IsProjectDomainInUse(domain string) (bool, error)
	MaxProjectPort() (int, error)

	// Sessions
	PutSession(id string, userID string, expiresAt int64) error
	GetSession(id string) (userID string, expiresAt int64, ok bool, err error)
	DeleteSession(id string) error

	Close() error
}
