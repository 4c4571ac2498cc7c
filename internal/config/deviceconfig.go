// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// DeviceConfigManager implements spec §6.2's two-document device
// configuration: a base catalog mapping communication specifiers to
// protocol names and per-device feature catalogs, and an optional user
// override layer (allow/deny, display name, reserved index, step-limit
// tightening). Grounded on the teacher's internal/cache (merge-and-cache
// shape) and internal/config/loader.go (load/parse shape): both documents
// are loaded once at server start and held immutable for the server's
// lifetime, matching spec §6.2's "configuration changes require a server
// restart" invariant.
package config

import (
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/nexhw/buttplug-go/internal/protocol"
	"github.com/nexhw/buttplug-go/pkg/device"
	"github.com/nexhw/buttplug-go/pkg/feature"
)

// --- on-disk shapes ---
//
// These are kept distinct from pkg/feature.Feature and pkg/device types
// because yaml.v2 has no notion of uuid.UUID or the wire JSON tags feature
// and device already carry for the client/server protocol; config authors
// write feature ids and output kinds as plain strings, parsed into the
// domain model by toDomain(). JSON remains the documented authoring format
// (spec §6.2); YAML is accepted the same way via parallel struct tags.

type configStepRange struct {
	Start int32 `json:"Start" yaml:"start"`
	End   int32 `json:"End" yaml:"end"`
}

func (r configStepRange) toDomain() feature.StepRange {
	return feature.StepRange{Start: r.Start, End: r.End}
}

type configActuatorSpec struct {
	StepRange configStepRange `json:"StepRange" yaml:"stepRange"`
	StepLimit configStepRange `json:"StepLimit" yaml:"stepLimit"`
}

type configSensorSpec struct {
	Ranges   []configStepRange `json:"Ranges" yaml:"ranges"`
	Commands []string          `json:"Commands" yaml:"commands"`
}

type configFeature struct {
	ID          string                        `json:"Id" yaml:"id"`
	Description string                        `json:"Description" yaml:"description"`
	FeatureType string                        `json:"FeatureType" yaml:"featureType"`
	Output      map[string]configActuatorSpec `json:"Output,omitempty" yaml:"output,omitempty"`
	Input       map[string]configSensorSpec   `json:"Input,omitempty" yaml:"input,omitempty"`
}

func (cf configFeature) toDomain() (feature.Feature, error) {
	id, err := uuid.Parse(cf.ID)
	if err != nil {
		return feature.Feature{}, errors.Wrapf(err, "feature id %q", cf.ID)
	}
	f := feature.Feature{
		ID:          id,
		Description: cf.Description,
		FeatureType: feature.Type(cf.FeatureType),
	}
	if len(cf.Output) > 0 {
		f.Output = make(map[feature.OutputType]feature.ActuatorSpec, len(cf.Output))
		for kind, spec := range cf.Output {
			f.Output[feature.OutputType(kind)] = feature.ActuatorSpec{
				StepRange: spec.StepRange.toDomain(),
				StepLimit: spec.StepLimit.toDomain(),
			}
		}
	}
	if len(cf.Input) > 0 {
		f.Input = make(map[feature.InputType]feature.SensorSpec, len(cf.Input))
		for kind, spec := range cf.Input {
			ranges := make([]feature.StepRange, len(spec.Ranges))
			for i, r := range spec.Ranges {
				ranges[i] = r.toDomain()
			}
			commands := make([]feature.InputCommandKind, len(spec.Commands))
			for i, c := range spec.Commands {
				commands[i] = feature.InputCommandKind(c)
			}
			f.Input[feature.InputType(kind)] = feature.SensorSpec{Ranges: ranges, Commands: commands}
		}
	}
	return f, f.Validate()
}

// configSpecifier matches a device's reported protocol.CommSpecifier
// (spec §6.3). NamePattern/AddressPattern are regular expressions matched
// against the specifier's Name/Address; an empty pattern matches anything.
type configSpecifier struct {
	Kind           string `json:"Kind" yaml:"kind"`
	NamePattern    string `json:"NamePattern,omitempty" yaml:"namePattern,omitempty"`
	AddressPattern string `json:"AddressPattern,omitempty" yaml:"addressPattern,omitempty"`
}

type configDeviceEntry struct {
	Protocol  string          `json:"Protocol" yaml:"protocol"`
	Specifier configSpecifier `json:"Specifier" yaml:"specifier"`
	Features  []configFeature `json:"Features" yaml:"features"`
}

type baseDeviceConfigFile struct {
	Devices []configDeviceEntry `json:"Devices" yaml:"devices"`
}

type configUserOverride struct {
	Identifier    string  `json:"Identifier" yaml:"identifier"`
	DisplayName   string  `json:"DisplayName,omitempty" yaml:"displayName,omitempty"`
	Allowed       *bool   `json:"Allowed,omitempty" yaml:"allowed,omitempty"`
	Denied        *bool   `json:"Denied,omitempty" yaml:"denied,omitempty"`
	ReservedIndex *uint32 `json:"ReservedIndex,omitempty" yaml:"reservedIndex,omitempty"`
	// StepLimits tightens a feature's accepted range, keyed by
	// "<feature-index>:<OutputType>" (e.g. "0:Vibrate").
	StepLimits map[string]configStepRange `json:"StepLimits,omitempty" yaml:"stepLimits,omitempty"`
}

type userDeviceConfigFile struct {
	AllowListActive bool                 `json:"AllowListActive" yaml:"allowListActive"`
	Overrides       []configUserOverride `json:"Overrides" yaml:"overrides"`
}

// --- runtime model ---

// ProtocolSpecializer is the device-configuration manager's matched result
// for one base catalog entry (spec §4.5 step 4): the protocol name a
// discovered device's specifier resolves to, a feature catalog template to
// clone per connected device, and the Handler factory registered for that
// protocol name.
type ProtocolSpecializer struct {
	ProtocolName string
	Features     []feature.Feature
	NewHandler   protocol.Factory
}

type matchEntry struct {
	kind        protocol.SpecifierKind
	nameRe      *regexp.Regexp
	addressRe   *regexp.Regexp
	specializer ProtocolSpecializer
}

type userOverride struct {
	displayName   string
	allowed       *bool
	denied        *bool
	reservedIndex *uint32
	stepLimits    map[string]feature.StepRange
}

// DeviceConfigManager merges the base and user device-configuration
// documents into the specializer list and override table the device
// manager's discovery step consults (spec §6.2, §4.5 step 4-5).
type DeviceConfigManager struct {
	entries          []matchEntry
	handlerFactories map[string]protocol.Factory
	overrides        map[string]userOverride
	allowListActive  bool
}

// NewDeviceConfigManager builds an empty manager; call LoadBaseConfig (and
// optionally LoadUserConfig) before Match/BuildDefinition are used.
func NewDeviceConfigManager() *DeviceConfigManager {
	return &DeviceConfigManager{
		handlerFactories: make(map[string]protocol.Factory),
		overrides:        make(map[string]userOverride),
	}
}

// RegisterHandler associates a protocol name from the base catalog with the
// constructor for its Handler. Config files describe data (specifiers,
// feature catalogs); handler implementations are code and must be wired
// explicitly by the process bootstrapping the server (spec §9's "no
// runtime polymorphism" extends to: config never instantiates a handler
// type by reflection).
func (m *DeviceConfigManager) RegisterHandler(protocolName string, factory protocol.Factory) {
	m.handlerFactories[protocolName] = factory
}

func decodeFile(path string, v interface{}) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, v)
	default:
		return json.Unmarshal(data, v)
	}
}

// LoadBaseConfig loads the base device-configuration document (JSON or
// YAML, detected by file extension) and compiles its specifier patterns.
func (m *DeviceConfigManager) LoadBaseConfig(path string) error {
	var file baseDeviceConfigFile
	if err := decodeFile(path, &file); err != nil {
		return errors.Wrap(err, "loading base device configuration")
	}
	m.entries = m.entries[:0]
	for _, entry := range file.Devices {
		features := make([]feature.Feature, 0, len(entry.Features))
		for _, cf := range entry.Features {
			f, err := cf.toDomain()
			if err != nil {
				return errors.Wrapf(err, "device config entry for protocol %q", entry.Protocol)
			}
			features = append(features, f)
		}
		nameRe, err := compilePattern(entry.Specifier.NamePattern)
		if err != nil {
			return errors.Wrapf(err, "protocol %q NamePattern", entry.Protocol)
		}
		addressRe, err := compilePattern(entry.Specifier.AddressPattern)
		if err != nil {
			return errors.Wrapf(err, "protocol %q AddressPattern", entry.Protocol)
		}
		m.entries = append(m.entries, matchEntry{
			kind:      protocol.SpecifierKind(entry.Specifier.Kind),
			nameRe:    nameRe,
			addressRe: addressRe,
			specializer: ProtocolSpecializer{
				ProtocolName: entry.Protocol,
				Features:     features,
			},
		})
	}
	return nil
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	return regexp.Compile(pattern)
}

// LoadUserConfig loads the optional user override document. Per spec §6.2
// this layer is optional; callers that have no override file simply skip
// this call.
func (m *DeviceConfigManager) LoadUserConfig(path string) error {
	var file userDeviceConfigFile
	if err := decodeFile(path, &file); err != nil {
		return errors.Wrap(err, "loading user device configuration")
	}
	m.allowListActive = file.AllowListActive
	for _, o := range file.Overrides {
		uo := userOverride{
			displayName:   o.DisplayName,
			allowed:       o.Allowed,
			denied:        o.Denied,
			reservedIndex: o.ReservedIndex,
		}
		if len(o.StepLimits) > 0 {
			uo.stepLimits = make(map[string]feature.StepRange, len(o.StepLimits))
			for key, r := range o.StepLimits {
				uo.stepLimits[key] = r.toDomain()
			}
		}
		m.overrides[o.Identifier] = uo
	}
	return nil
}

// Match finds the first base catalog entry whose specifier matches the
// discovered device's CommSpecifier (spec §4.5 step 4). Ok is false if
// nothing matches, meaning the device manager must drop the discovery
// event silently.
func (m *DeviceConfigManager) Match(specifier protocol.CommSpecifier) (ProtocolSpecializer, bool) {
	for _, e := range m.entries {
		if e.kind != specifier.Kind {
			continue
		}
		if e.nameRe != nil && !e.nameRe.MatchString(specifier.Name) {
			continue
		}
		if e.addressRe != nil && !e.addressRe.MatchString(specifier.Address) {
			continue
		}
		spec := e.specializer
		if factory, ok := m.handlerFactories[spec.ProtocolName]; ok {
			spec.NewHandler = factory
		}
		return spec, true
	}
	return ProtocolSpecializer{}, false
}

// IsAllowed reports whether a device identifier may be connected at all
// (spec §4.5 step 1): denied identifiers are always rejected; when an allow
// list is active, only identifiers explicitly marked Allowed pass.
func (m *DeviceConfigManager) IsAllowed(id device.Identifier) bool {
	o, ok := m.overrides[id.String()]
	if ok && o.denied != nil && *o.denied {
		return false
	}
	if m.allowListActive {
		return ok && o.allowed != nil && *o.allowed
	}
	return true
}

// ReservedIndex returns the device index a user override pinned this
// identifier to, if any.
func (m *DeviceConfigManager) ReservedIndex(id device.Identifier) *uint32 {
	return m.overrides[id.String()].reservedIndex
}

// BuildDefinition clones a matched specializer's feature catalog and
// applies any user override (display name, reserved index, step-limit
// tightening) for this specific device identifier (spec §3 "user_config").
func (m *DeviceConfigManager) BuildDefinition(id device.Identifier, name string, spec ProtocolSpecializer) *device.Definition {
	features := make([]feature.Feature, len(spec.Features))
	copy(features, spec.Features)

	o := m.overrides[id.String()]
	for key, limit := range o.stepLimits {
		idx, kind, ok := parseStepLimitKey(key)
		if !ok || int(idx) >= len(features) {
			continue
		}
		if a, ok := features[idx].AcceptsOutput(kind); ok {
			a.StepLimit = limit
			out := make(map[feature.OutputType]feature.ActuatorSpec, len(features[idx].Output))
			for k, v := range features[idx].Output {
				out[k] = v
			}
			out[kind] = a
			features[idx].Output = out
		}
	}

	def := &device.Definition{
		Name:       name,
		Identifier: id,
		Features:   features,
	}
	def.UserConfig = device.UserConfig{
		DisplayName:   o.displayName,
		Denied:        o.denied != nil && *o.denied,
		ReservedIndex: o.reservedIndex,
	}
	if o.allowed != nil {
		def.UserConfig.Allowed = *o.allowed
	}
	return def
}

func parseStepLimitKey(key string) (uint32, feature.OutputType, bool) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 {
		return 0, "", false
	}
	idx, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, "", false
	}
	return uint32(idx), feature.OutputType(parts[1]), true
}
