package inventory

import (
	"context"
	"encoding/xml"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/netpanel/pkg/log"
	"github.com/cuemby/netpanel/pkg/types"
)

// libvirtClient is the subset of *libvirt.Libvirt the inventory uses
type libvirtClient interface {
	ConnectListAllDomains(NeedResults int32, Flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error)
	DomainGetXMLDesc(Dom libvirt.Domain, Flags libvirt.DomainXMLFlags) (string, error)
	DomainGetInfo(Dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error)
	Disconnect() error
}

// domainXML holds the parts of the libvirt domain XML the inventory reads
type domainXML struct {
	XMLName xml.Name   `xml:"domain"`
	Name    string     `xml:"name"`
	Devices domainDevs `xml:"devices"`
}

type domainDevs struct {
	Interfaces []domainNIC      `xml:"interface"`
	Graphics   []domainGraphics `xml:"graphics"`
}

type domainNIC struct {
	Type   string       `xml:"type,attr"`
	Source domainNICSrc `xml:"source"`
}

type domainNICSrc struct {
	Network string `xml:"network,attr"`
	Bridge  string `xml:"bridge,attr"`
}

type domainGraphics struct {
	Type string `xml:"type,attr"`
	Port int    `xml:"port,attr"`
}

// memberPattern splits domain names like "desktop-3" into group and member id
var memberPattern = regexp.MustCompile(`^(.*?)[-_]?(\d+)$`)

// LibvirtConfig configures a LibvirtInventory
type LibvirtConfig struct {
	SocketPath   string
	DomainSuffix string
	Timeout      time.Duration
}

// LibvirtInventory reads machines from a libvirt daemon. Domains are
// machines, the networks their interfaces attach to are intnets.
type LibvirtInventory struct {
	client libvirtClient
	cfg    LibvirtConfig
	logger zerolog.Logger

	// previous CPU time samples, used to turn cumulative time into a percentage
	mu      sync.Mutex
	samples map[string]cpuSample
}

type cpuSample struct {
	cpuTime uint64
	at      time.Time
}

// NewLibvirtInventory dials the libvirt unix socket and performs the
// connect handshake
func NewLibvirtInventory(cfg LibvirtConfig) (*LibvirtInventory, error) {
	if cfg.SocketPath == "" {
		return nil, fmt.Errorf("libvirt socket path must not be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	conn, err := net.DialTimeout("unix", cfg.SocketPath, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("dial libvirt socket %q: %w", cfg.SocketPath, err)
	}

	l := libvirt.New(conn)
	if err := l.Connect(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("libvirt connect: %w", err)
	}

	return newLibvirtInventory(l, cfg), nil
}

func newLibvirtInventory(client libvirtClient, cfg LibvirtConfig) *LibvirtInventory {
	return &LibvirtInventory{
		client:  client,
		cfg:     cfg,
		logger:  log.WithComponent("inventory"),
		samples: make(map[string]cpuSample),
	}
}

// Close disconnects from the libvirt daemon
func (i *LibvirtInventory) Close() error {
	if err := i.client.Disconnect(); err != nil {
		return fmt.Errorf("libvirt disconnect: %w", err)
	}
	return nil
}

type domainView struct {
	dom  libvirt.Domain
	uuid string
	xml  domainXML
}

func (i *LibvirtInventory) domains(ctx context.Context) ([]domainView, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	domains, _, err := i.client.ConnectListAllDomains(1, libvirt.ConnectListDomainsActive|libvirt.ConnectListDomainsInactive)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}

	out := make([]domainView, 0, len(domains))
	for _, d := range domains {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		desc, err := i.client.DomainGetXMLDesc(d, 0)
		if err != nil {
			i.logger.Debug().Err(err).Str("domain", d.Name).Msg("Skipping domain without XML description")
			continue
		}
		var parsed domainXML
		if err := xml.Unmarshal([]byte(desc), &parsed); err != nil {
			i.logger.Warn().Err(err).Str("domain", d.Name).Msg("Skipping domain with unparsable XML")
			continue
		}
		out = append(out, domainView{
			dom:  d,
			uuid: uuid.UUID(d.UUID).String(),
			xml:  parsed,
		})
	}
	return out, nil
}

// Machines implements Inventory
func (i *LibvirtInventory) Machines(ctx context.Context) (map[string]*types.MachineNetworkData, error) {
	views, err := i.domains(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*types.MachineNetworkData, len(views))
	for _, v := range views {
		group, member := splitMember(v.dom.Name)
		m := &types.MachineNetworkData{
			UUID:          v.uuid,
			Group:         group,
			GroupMemberID: member,
		}
		for _, g := range v.xml.Devices.Graphics {
			if g.Port > 0 {
				m.Port = g.Port
				break
			}
		}
		if i.cfg.DomainSuffix != "" {
			m.Domain = v.dom.Name + "." + i.cfg.DomainSuffix
		}
		out[v.uuid] = m
	}
	return out, nil
}

// States implements Inventory
func (i *LibvirtInventory) States(ctx context.Context) (map[string]*types.MachineState, error) {
	views, err := i.domains(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*types.MachineState, len(views))
	for _, v := range views {
		state, maxMem, mem, vcpus, cpuTime, err := i.client.DomainGetInfo(v.dom)
		if err != nil {
			i.logger.Debug().Err(err).Str("domain", v.dom.Name).Msg("Failed to read domain info")
			continue
		}

		group, member := splitMember(v.dom.Name)
		st := &types.MachineState{
			UUID:          v.uuid,
			Group:         group,
			GroupMemberID: member,
			RAMMax:        int(maxMem / 1024),
		}

		switch libvirt.DomainState(state) {
		case libvirt.DomainRunning, libvirt.DomainBlocked:
			st.Active = true
		case libvirt.DomainPaused, libvirt.DomainShutdown, libvirt.DomainPmsuspended:
			st.Loading = true
		}
		if st.Active || st.Loading {
			st.RAMUsed = int(mem / 1024)
			st.CPU = i.cpuPercent(v.uuid, cpuTime, vcpus)
		}
		out[v.uuid] = st
	}
	return out, nil
}

// IntnetAssignments implements Inventory
func (i *LibvirtInventory) IntnetAssignments(ctx context.Context) (types.IntnetConfiguration, error) {
	views, err := i.domains(ctx)
	if err != nil {
		return nil, err
	}

	membership := make(map[string][]string, len(views))
	for _, v := range views {
		for _, nic := range v.xml.Devices.Interfaces {
			switch {
			case nic.Source.Network != "":
				membership[v.uuid] = append(membership[v.uuid], nic.Source.Network)
			case nic.Source.Bridge != "":
				membership[v.uuid] = append(membership[v.uuid], nic.Source.Bridge)
			}
		}
	}
	return groupIntnets(membership), nil
}

// cpuPercent compares cumulative CPU time with the previous sample. The
// first sample of a domain reports 0.
func (i *LibvirtInventory) cpuPercent(id string, cpuTime uint64, vcpus uint16) int {
	now := time.Now()

	i.mu.Lock()
	prev, ok := i.samples[id]
	i.samples[id] = cpuSample{cpuTime: cpuTime, at: now}
	i.mu.Unlock()

	if !ok || vcpus == 0 || cpuTime < prev.cpuTime {
		return 0
	}
	wall := now.Sub(prev.at).Nanoseconds()
	if wall <= 0 {
		return 0
	}

	pct := float64(cpuTime-prev.cpuTime) / float64(wall) / float64(vcpus) * 100
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return int(pct)
	}
}

func splitMember(name string) (string, int) {
	m := memberPattern.FindStringSubmatch(name)
	if m == nil || m[1] == "" {
		return name, 0
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return name, 0
	}
	return m[1], n
}
