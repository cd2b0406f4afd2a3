package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dmuraco3/NanoScale/pkg/client"
	"github.com/dmuraco3/NanoScale/pkg/metrics"
	"github.com/dmuraco3/NanoScale/pkg/types"
	"github.com/google/uuid"
)

const maxPortAllocationAttempts = 100

// handleCreateProject is the coordination kernel described in §4.11:
// validate, look up the target server, assign a domain and port,
// insert the row, and dispatch a signed create call to the worker,
// rolling the row back if that call fails.
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := validateCreateProjectFields(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	server, err := s.store.GetServer(req.ServerID)
	if err != nil {
		writeError(w, http.StatusNotFound, "selected server was not found")
		return
	}

	projectID := uuid.NewString()

	domain, err := assignedProjectDomain(s.baseDomain, projectID, req.Name, s.store.IsProjectDomainInUse)
	if err != nil {
		if errors.Is(err, errDomainConflict) {
			writeError(w, http.StatusConflict, err.Error())
		} else {
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	port, err := s.allocateProjectPort(r.Context(), server, req.Port)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, errPortBelowMinimum), errors.Is(err, errPortInUse):
			status = http.StatusBadRequest
			if errors.Is(err, errPortInUse) {
				status = http.StatusConflict
			}
		case errors.Is(err, errNoPortAvailable):
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}

	envVarsJSON, err := encodeEnvVars(req.EnvVars)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode environment variables")
		return
	}

	tlsEmail, _ := s.tlsEmail()

	project := &types.Project{
		ID:              projectID,
		ServerID:        req.ServerID,
		Name:            req.Name,
		RepoURL:         req.RepoURL,
		Branch:          req.Branch,
		InstallCommand:  req.InstallCommand,
		BuildCommand:    req.BuildCommand,
		StartCommand:    req.RunCommand,
		OutputDirectory: req.OutputDirectory,
		EnvVars:         envVarsJSON,
		Port:            port,
		Domain:          domain,
		TLSEmail:        tlsEmail,
		CreatedAt:       time.Now(),
	}
	if err := s.store.CreateProject(project); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create project")
		return
	}

	if err := s.dispatchCreateProject(r.Context(), server, project); err != nil {
		_ = s.store.DeleteProject(project.ID)
		writeError(w, http.StatusBadGateway, "worker deployment call failed: "+err.Error())
		return
	}

	metrics.ProjectsTotal.Inc()
	writeJSON(w, http.StatusCreated, createProjectResponse{
		ID:     project.ID,
		Domain: optionalString(project.Domain),
	})
}

func validateCreateProjectFields(req createProjectRequest) error {
	if strings.TrimSpace(req.Name) == "" ||
		strings.TrimSpace(req.RepoURL) == "" ||
		strings.TrimSpace(req.InstallCommand) == "" ||
		strings.TrimSpace(req.BuildCommand) == "" ||
		strings.TrimSpace(req.RunCommand) == "" {
		return errors.New("project name, repository URL, install/build/run commands are required")
	}
	return nil
}

func encodeEnvVars(vars []projectEnvVar) (string, error) {
	asMap := make(map[string]string, len(vars))
	for _, v := range vars {
		asMap[v.Key] = v.Value
	}
	encoded, err := json.Marshal(asMap)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

var (
	errPortBelowMinimum = errors.New("port must be at least the minimum project port")
	errPortInUse        = errors.New("requested port is already in use")
	errNoPortAvailable  = errors.New("no available port found after 100 attempts")
)

// allocateProjectPort resolves the port a new project binds: the
// caller's choice if valid and free, or the first free port starting
// at max(existing)+1 otherwise.
func (s *Server) allocateProjectPort(ctx context.Context, server *types.Server, requested *int) (int, error) {
	if requested != nil {
		port := *requested
		if port < types.BaseProjectPort {
			return 0, fmt.Errorf("%w: %d", errPortBelowMinimum, types.BaseProjectPort)
		}
		inUse, err := s.store.IsProjectPortInUse(port)
		if err != nil {
			return 0, err
		}
		if inUse {
			return 0, fmt.Errorf("%w: %d", errPortInUse, port)
		}
		available, err := s.checkWorkerPort(ctx, server, port)
		if err != nil {
			return 0, err
		}
		if !available {
			return 0, fmt.Errorf("%w: %d", errPortInUse, port)
		}
		return port, nil
	}

	maxPort, err := s.store.MaxProjectPort()
	if err != nil {
		return 0, err
	}
	start := maxPort + 1
	if start < types.BaseProjectPort {
		start = types.BaseProjectPort
	}

	for candidate := start; candidate < start+maxPortAllocationAttempts; candidate++ {
		inUse, err := s.store.IsProjectPortInUse(candidate)
		if err != nil {
			return 0, err
		}
		if inUse {
			continue
		}
		available, err := s.checkWorkerPort(ctx, server, candidate)
		if err != nil {
			return 0, err
		}
		if available {
			return candidate, nil
		}
	}
	return 0, errNoPortAvailable
}

func (s *Server) checkWorkerPort(ctx context.Context, server *types.Server, port int) (bool, error) {
	c := client.New(server.ID, server.SecretKey)
	return c.CheckPortAvailable(ctx, s.workerHost(server), port)
}

// dispatchCreateProject signs and sends the worker create-project
// call for project, addressed to server.
func (s *Server) dispatchCreateProject(ctx context.Context, server *types.Server, project *types.Project) error {
	timer := metrics.NewTimer()
	c := client.New(server.ID, server.SecretKey)
	err := c.CreateProject(ctx, s.workerHost(server), client.CreateProjectRequest{
		ProjectID:       project.ID,
		RepoURL:         project.RepoURL,
		Branch:          project.Branch,
		InstallCommand:  project.InstallCommand,
		BuildCommand:    project.BuildCommand,
		StartCommand:    project.StartCommand,
		OutputDirectory: project.OutputDirectory,
		EnvVars:         project.EnvVars,
		Port:            project.Port,
		Domain:          project.Domain,
		TLSEmail:        project.TLSEmail,
	})
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	timer.ObserveDurationVec(metrics.WorkerDispatchDuration, "create-project", outcome)
	return err
}

// dispatchDeleteProject signs and sends the worker teardown call for
// projectID, addressed to server.
func (s *Server) dispatchDeleteProject(ctx context.Context, server *types.Server, projectID string) error {
	timer := metrics.NewTimer()
	c := client.New(server.ID, server.SecretKey)
	err := c.DeleteProject(ctx, s.workerHost(server), projectID)
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	timer.ObserveDurationVec(metrics.WorkerDispatchDuration, "delete-project", outcome)
	return err
}

// handleListProjects returns every known project.
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list projects")
		return
	}

	items := make([]projectListItem, 0, len(projects))
	for _, project := range projects {
		items = append(items, mapProjectListItem(project))
	}
	writeJSON(w, http.StatusOK, items)
}

func mapProjectListItem(project *types.Project) projectListItem {
	return projectListItem{
		ID:         project.ID,
		Name:       project.Name,
		RepoURL:    project.RepoURL,
		Branch:     project.Branch,
		RunCommand: project.StartCommand,
		Port:       project.Port,
		Domain:     optionalString(project.Domain),
		Status:     "deployed",
		CreatedAt:  project.CreatedAt.Format(time.RFC3339),
	}
}

// handleGetProject returns one project's full detail, including its
// server's name where still known.
func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.store.GetProject(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}

	var serverName *string
	if server, err := s.store.GetServer(project.ServerID); err == nil {
		serverName = optionalString(server.Name)
	}

	writeJSON(w, http.StatusOK, projectDetailsResponse{
		ID:             project.ID,
		ServerID:       project.ServerID,
		ServerName:     serverName,
		Name:           project.Name,
		RepoURL:        project.RepoURL,
		Branch:         project.Branch,
		InstallCommand: project.InstallCommand,
		BuildCommand:   project.BuildCommand,
		RunCommand:     project.StartCommand,
		Status:         "deployed",
		Port:           project.Port,
		Domain:         optionalString(project.Domain),
		CreatedAt:      project.CreatedAt.Format(time.RFC3339),
	})
}

// handleDeleteProject tears a project down on its worker, which drops
// it from that worker's idle-monitor watch set, then removes the
// project's row.
func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	project, err := s.store.GetProject(projectID)
	if err != nil {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}

	server, err := s.store.GetServer(project.ServerID)
	if err != nil {
		writeError(w, http.StatusNotFound, "project's server was not found")
		return
	}

	if err := s.dispatchDeleteProject(r.Context(), server, projectID); err != nil {
		writeError(w, http.StatusBadGateway, "worker deployment call failed: "+err.Error())
		return
	}

	if err := s.store.DeleteProject(projectID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete project row")
		return
	}

	metrics.ProjectsTotal.Dec()
	w.WriteHeader(http.StatusNoContent)
}

// handleRedeployProject tears a project down and recreates it from
// its stored parameters. This is stop-then-recreate; there is no
// rolling update.
func (s *Server) handleRedeployProject(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	project, err := s.store.GetProject(projectID)
	if err != nil {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}

	server, err := s.store.GetServer(project.ServerID)
	if err != nil {
		writeError(w, http.StatusNotFound, "project's server was not found")
		return
	}

	if err := s.dispatchDeleteProject(r.Context(), server, projectID); err != nil {
		writeError(w, http.StatusBadGateway, "worker teardown call failed: "+err.Error())
		return
	}

	if err := s.dispatchCreateProject(r.Context(), server, project); err != nil {
		writeError(w, http.StatusBadGateway, "worker deployment call failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, createProjectResponse{
		ID:     project.ID,
		Domain: optionalString(project.Domain),
	})
}
