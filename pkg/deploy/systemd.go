package deploy

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/dmuraco3/NanoScale/pkg/gate"
)

const (
	tmpBasePath      = "/opt/nanoscale/tmp"
	systemdTargetDir = "/etc/systemd/system"
	socketProxyBin   = "/usr/lib/systemd/systemd-socket-proxyd"
)

var serviceUnitTemplate = template.Must(template.New("service").Parse(
	`[Unit]
Description=NanoScale app service ({{.ServiceName}})
After=network.target

[Service]
Type=simple
User=nanoscale-{{.ProjectID}}
Group=nanoscale-{{.ProjectID}}
WorkingDirectory={{.SourceDir}}
Environment=NODE_ENV=production
Environment=PORT={{.BackendPort}}
ExecStart={{.ExecStart}}
Restart=always
RestartSec=2
CPUAccounting=yes
MemoryAccounting=yes
IPAccounting=yes

# Security hardening
ProtectSystem=strict
ProtectHome=yes
PrivateTmp=yes
NoNewPrivileges=yes
ProtectProc=invisible
ReadWritePaths={{.SourceDir}}

[Install]
WantedBy=multi-user.target
`))

var socketUnitTemplate = template.Must(template.New("socket").Parse(
	`[Unit]
Description=NanoScale app socket ({{.ServiceName}})
PartOf={{.ServiceName}}.service

[Socket]
ListenStream=127.0.0.1:{{.Port}}
NoDelay=true
Service={{.ServiceName}}-proxy.service

[Install]
WantedBy=sockets.target
`))

var proxyUnitTemplate = template.Must(template.New("proxy").Parse(
	`[Unit]
Description=NanoScale socket proxy ({{.ServiceName}})
Requires={{.ServiceName}}.service
After={{.ServiceName}}.service

[Service]
ExecStartPre=/usr/bin/systemctl start {{.ServiceName}}.service
ExecStart={{.SocketProxyBin}} 127.0.0.1:{{.BackendPort}}
Restart=always
RestartSec=1
`))

type unitData struct {
	ServiceName    string
	ProjectID      string
	SourceDir      string
	BackendPort    int
	Port           int
	ExecStart      string
	SocketProxyBin string
}

// Installer writes and installs the three systemd units a project
// needs: the app service bound to its backend port, the public-facing
// socket, and the proxy service that bridges the two so the socket can
// be scaled to zero.
type Installer struct {
	Gate *gate.Gate
}

// NewInstaller returns an Installer backed by g.
func NewInstaller(g *gate.Gate) *Installer {
	return &Installer{Gate: g}
}

// Install renders and installs the unit trio for projectID at public
// port, starting the service backed at sourceDir/runtime and running
// runCommand.
func (in *Installer) Install(ctx context.Context, projectID, sourceDir string, appRuntime AppRuntime, runCommand string, port int) error {
	if port <= 0 || port > math.MaxUint16 {
		return fmt.Errorf("invalid public port: %d", port)
	}
	backendPort := port + 10000
	if backendPort > math.MaxUint16 {
		return fmt.Errorf("backend port %d exceeds the 16-bit range", backendPort)
	}

	serviceName := fmt.Sprintf("nanoscale-%s", projectID)

	execStart, err := resolveExecStart(sourceDir, appRuntime, runCommand, backendPort)
	if err != nil {
		return err
	}

	data := unitData{
		ServiceName:    serviceName,
		ProjectID:      projectID,
		SourceDir:      sourceDir,
		BackendPort:    backendPort,
		Port:           port,
		ExecStart:      execStart,
		SocketProxyBin: socketProxyBin,
	}

	if err := os.MkdirAll(tmpBasePath, 0755); err != nil {
		return err
	}

	tmpServicePath := filepath.Join(tmpBasePath, serviceName+".service")
	tmpSocketPath := filepath.Join(tmpBasePath, serviceName+".socket")
	tmpProxyPath := filepath.Join(tmpBasePath, serviceName+"-proxy.service")

	if err := renderToFile(serviceUnitTemplate, data, tmpServicePath); err != nil {
		return err
	}
	if err := renderToFile(socketUnitTemplate, data, tmpSocketPath); err != nil {
		return err
	}
	if err := renderToFile(proxyUnitTemplate, data, tmpProxyPath); err != nil {
		return err
	}

	serviceTarget := filepath.Join(systemdTargetDir, serviceName+".service")
	socketTarget := filepath.Join(systemdTargetDir, serviceName+".socket")
	proxyTarget := filepath.Join(systemdTargetDir, serviceName+"-proxy.service")

	for _, move := range [][2]string{
		{tmpServicePath, serviceTarget},
		{tmpSocketPath, socketTarget},
		{tmpProxyPath, proxyTarget},
	} {
		if _, err := in.Gate.Run(ctx, gate.Mv, []string{move[0], move[1]}); err != nil {
			return err
		}
	}

	if _, err := in.Gate.Run(ctx, gate.Systemctl, []string{"daemon-reload"}); err != nil {
		return err
	}

	if _, err := in.Gate.Run(ctx, gate.Systemctl, []string{"enable", "--now", serviceName + ".service"}); err != nil {
		return err
	}
	if _, err := in.Gate.Run(ctx, gate.Systemctl, []string{"enable", "--now", serviceName + ".socket"}); err != nil {
		return err
	}

	return nil
}

func renderToFile(tmpl *template.Template, data unitData, path string) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

func resolveExecStart(sourceDir string, appRuntime AppRuntime, runCommand string, backendPort int) (string, error) {
	trimmed := strings.TrimSpace(runCommand)
	if trimmed == "" {
		switch appRuntime.Kind {
		case RuntimeStandaloneSelfContained:
			return fmt.Sprintf("/usr/bin/node %s/server.js", sourceDir), nil
		case RuntimePackageManagerStart:
			return fmt.Sprintf("%s run start -- --hostname 127.0.0.1 --port %d", appRuntime.Interpreter, backendPort), nil
		default:
			return "", fmt.Errorf("unknown runtime kind: %s", appRuntime.Kind)
		}
	}

	program, args, err := parseCommand(trimmed)
	if err != nil {
		return "", err
	}

	executable := program
	if program == packageManager {
		executable, err = packageManagerBinary()
		if err != nil {
			return "", err
		}
	}

	if len(args) == 0 {
		return executable, nil
	}
	return executable + " " + strings.Join(args, " "), nil
}
