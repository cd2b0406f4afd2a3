package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmuraco3/NanoScale/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketServers    = []byte("servers")
	bucketJoinTokens = []byte("join_tokens")
	bucketUsers      = []byte("users")
	bucketProjects   = []byte("projects")
	bucketSessions   = []byte("sessions")
)

// BoltStore implements Store using an on-disk BoltDB file, one bucket
// per entity, JSON-marshaled values keyed by id (or by token/session
// value where there is no separate id).
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the database at dbPath and
// ensures every bucket exists.
func NewBoltStore(dbPath string) (*BoltStore, error) {
	if err := ensureParentDir(dbPath); err != nil {
		return nil, err
	}

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketServers, bucketJoinTokens, bucketUsers, bucketProjects, bucketSessions} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func ensureParentDir(dbPath string) error {
	return os.MkdirAll(filepath.Dir(dbPath), 0755)
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// --- Servers ---

func (s *BoltStore) CreateServer(server *types.Server) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(server)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketServers).Put([]byte(server.ID), data)
	})
}

func (s *BoltStore) GetServer(id string) (*types.Server, error) {
	var server types.Server
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketServers).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("server not found: %s", id)
		}
		return json.Unmarshal(data, &server)
	})
	if err != nil {
		return nil, err
	}
	return &server, nil
}

func (s *BoltStore) ListServers() ([]*types.Server, error) {
	var servers []*types.Server
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketServers).ForEach(func(_, v []byte) error {
			var server types.Server
			if err := json.Unmarshal(v, &server); err != nil {
				return err
			}
			servers = append(servers, &server)
			return nil
		})
	})
	return servers, err
}

func (s *BoltStore) DeleteServer(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketServers).Delete([]byte(id))
	})
}

// --- Join tokens ---

func (s *BoltStore) PutJoinToken(token *types.JoinToken) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(token)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketJoinTokens).Put([]byte(token.Value), data)
	})
}

func (s *BoltStore) GetJoinToken(value string) (*types.JoinToken, error) {
	var token types.JoinToken
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketJoinTokens).Get([]byte(value))
		if data == nil {
			return fmt.Errorf("join token not found")
		}
		return json.Unmarshal(data, &token)
	})
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (s *BoltStore) DeleteJoinToken(value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJoinTokens).Delete([]byte(value))
	})
}

func (s *BoltStore) ListJoinTokens() ([]*types.JoinToken, error) {
	var tokens []*types.JoinToken
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJoinTokens).ForEach(func(_, v []byte) error {
			var token types.JoinToken
			if err := json.Unmarshal(v, &token); err != nil {
				return err
			}
			tokens = append(tokens, &token)
			return nil
		})
	})
	return tokens, err
}

// --- Users ---

func (s *BoltStore) CreateUser(user *types.User) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(user)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketUsers).Put([]byte(user.ID), data)
	})
}

func (s *BoltStore) GetUser(id string) (*types.User, error) {
	var user types.User
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketUsers).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("user not found: %s", id)
		}
		return json.Unmarshal(data, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *BoltStore) GetUserByUsername(username string) (*types.User, error) {
	var found *types.User
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(_, v []byte) error {
			var user types.User
			if err := json.Unmarshal(v, &user); err != nil {
				return err
			}
			if user.Username == username {
				found = &user
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, nil
	}
	return found, nil
}

func (s *BoltStore) CountUsers() (int, error) {
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(bucketUsers).Stats().KeyN
		return nil
	})
	return count, err
}

// --- Projects ---

func (s *BoltStore) CreateProject(project *types.Project) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(project)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketProjects).Put([]byte(project.ID), data)
	})
}

func (s *BoltStore) GetProject(id string) (*types.Project, error) {
	var project types.Project
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketProjects).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("project not found: %s", id)
		}
		return json.Unmarshal(data, &project)
	})
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (s *BoltStore) ListProjects() ([]*types.Project, error) {
	var projects []*types.Project
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProjects).ForEach(func(_, v []byte) error {
			var project types.Project
			if err := json.Unmarshal(v, &project); err != nil {
				return err
			}
			projects = append(projects, &project)
			return nil
		})
	})
	return projects, err
}

func (s *BoltStore) ListProjectsByServer(serverID string) ([]*types.Project, error) {
	all, err := s.ListProjects()
	if err != nil {
		return nil, err
	}
	var filtered []*types.Project
	for _, p := range all {
		if p.ServerID == serverID {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

func (s *BoltStore) UpdateProject(project *types.Project) error {
	return s.CreateProject(project)
}

func (s *BoltStore) DeleteProject(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProjects).Delete([]byte(id))
	})
}

func (s *BoltStore) IsProjectPortInUse(port int) (bool, error) {
	projects, err := s.ListProjects()
	if err != nil {
		return false, err
	}
	for _, p := range projects {
		if p.Port == port {
			return true, nil
		}
	}
	return false, nil
}

func (s *BoltStore) IsProjectDomainInUse(domain string) (bool, error) {
	if domain == "" {
		return false, nil
	}
	projects, err := s.ListProjects()
	if err != nil {
		return false, err
	}
	for _, p := range projects {
		if p.Domain == domain {
			return true, nil
		}
	}
	return false, nil
}

func (s *BoltStore) MaxProjectPort() (int, error) {
	projects, err := s.ListProjects()
	if err != nil {
		return 0, err
	}
	max := 0
	for _, p := range projects {
		if p.Port > max {
			max = p.Port
		}
	}
	return max, nil
}

// --- Sessions ---

type sessionRecord struct {
	UserID    string `json:"user_id"`
	ExpiresAt int64  `json:"expires_at"`
}

func (s *BoltStore) PutSession(id string, userID string, expiresAt int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(sessionRecord{UserID: userID, ExpiresAt: expiresAt})
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSessions).Put([]byte(id), data)
	})
}

func (s *BoltStore) GetSession(id string) (string, int64, bool, error) {
	var rec sessionRecord
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSessions).Get([]byte(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return "", 0, false, err
	}
	return rec.UserID, rec.ExpiresAt, found, nil
}

func (s *BoltStore) DeleteSession(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).Delete([]byte(id))
	})
}
