package debuginfo

import (
	"crypto/sha256"
	"debug/elf"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dwarfbind/dwarfbind/internal/config"
	"github.com/dwarfbind/dwarfbind/internal/errs"
)

// Resolver locates the debug data set for a library image.
type Resolver struct {
	cfg    *config.Config
	logger zerolog.Logger
}

// NewResolver creates a resolver using the configured debug search roots.
func NewResolver(cfg *config.Config, logger zerolog.Logger) *Resolver {
	return &Resolver{
		cfg:    cfg,
		logger: logger.With().Str("component", "resolver").Logger(),
	}
}

// Resolve reads the image's embedded identity and locates its debug data.
// An unopenable or unparsable image fails with ErrLibraryNotFound. A
// missing debug data set is not fatal: the returned Library carries an
// empty DebugFileSet and the exported-symbol list, and the condition is
// logged as a DebugInfoUnavailable warning.
func (r *Resolver) Resolve(path string) (*Library, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrLibraryNotFound, fmt.Sprintf("opening %s: %v", path, err))
	}
	defer errs.DeferClose(r.logger, f, "failed to close library image")

	lib := &Library{Path: path}
	lib.Name = soname(f)

	id, fromNote := r.buildID(f, path)
	lib.BuildID = id

	lib.Exported = exportedFunctions(f)

	if hasDebugSections(f) {
		lib.Files.Main = &DebugFile{Path: path, Valid: true}
		lib.DebugPath = path
	} else {
		main := r.findSeparateDebug(f, path, id, fromNote)
		if main != nil {
			lib.Files.Main = main
			lib.DebugPath = main.Path
		}
	}

	if lib.Files.Empty() {
		r.logger.Warn().
			Str("library", path).
			Err(errs.ErrDebugInfoUnavailable).
			Msg("Proceeding with exported symbols only")
	} else {
		lib.Files.Auxiliary = r.findAuxiliary(lib.Files.Main)
	}

	r.logger.Info().
		Str("library", path).
		Str("soname", lib.Name).
		Str("build_id", lib.BuildID).
		Str("debug_file", lib.DebugPath).
		Int("exported_functions", len(lib.Exported)).
		Bool("auxiliary", lib.Files.HasAuxiliary()).
		Msg("Library resolved")

	return lib, nil
}

// soname returns the embedded DT_SONAME, or "" when absent.
func soname(f *elf.File) string {
	names, err := f.DynString(elf.DT_SONAME)
	if err != nil || len(names) == 0 {
		return ""
	}
	return names[0]
}

// buildID extracts the NT_GNU_BUILD_ID note. When the note is absent it
// falls back to a sha256 fingerprint of the image, which is usable for
// display but not for .build-id path lookup; the second return value
// reports whether the id came from the note.
func (r *Resolver) buildID(f *elf.File, path string) (string, bool) {
	if section := f.Section(".note.gnu.build-id"); section != nil {
		data, err := section.Data()
		if err == nil {
			if id := parseBuildIDNote(data); id != "" {
				return id, true
			}
		}
	}

	file, err := os.Open(path) // #nosec G304 - path was already opened as ELF
	if err != nil {
		return BuildIDUnknown, false
	}
	defer errs.DeferClose(r.logger, file, "failed to close image during hashing")

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return BuildIDUnknown, false
	}
	return "sha256:" + hex.EncodeToString(hasher.Sum(nil)), false
}

// parseBuildIDNote walks ELF note records looking for a GNU build-id
// (type 3) and returns it hex-encoded.
// Record layout: namesz(4) descsz(4) type(4) name(4-aligned) desc(4-aligned).
func parseBuildIDNote(data []byte) string {
	const ntGNUBuildID = 3

	for len(data) >= 12 {
		namesz := binary.LittleEndian.Uint32(data[0:4])
		descsz := binary.LittleEndian.Uint32(data[4:8])
		noteType := binary.LittleEndian.Uint32(data[8:12])
		data = data[12:]

		nameLen := int(align4(namesz))
		descLen := int(align4(descsz))
		if nameLen+descLen > len(data) {
			return ""
		}

		name := strings.TrimRight(string(data[:min(int(namesz), len(data))]), "\x00")
		desc := data[nameLen : nameLen+int(descsz)]

		if name == "GNU" && noteType == ntGNUBuildID && descsz > 0 {
			return hex.EncodeToString(desc)
		}
		data = data[nameLen+descLen:]
	}
	return ""
}

func align4(n uint32) uint32 {
	return (n + 3) &^ 3
}

// hasDebugSections reports whether the image itself carries full DWARF.
func hasDebugSections(f *elf.File) bool {
	return f.Section(".debug_info") != nil || f.Section(".zdebug_info") != nil
}

// exportedFunctions filters the dynamic symbol table down to defined
// function symbols, sorted by name for deterministic output. A missing
// dynamic symbol table yields an empty list, not an error.
func exportedFunctions(f *elf.File) []ExportedFunction {
	symbols, err := f.DynamicSymbols()
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var out []ExportedFunction
	for _, sym := range symbols {
		if elf.ST_TYPE(sym.Info) != elf.STT_FUNC {
			continue
		}
		if sym.Section == elf.SHN_UNDEF || sym.Name == "" {
			continue
		}
		if seen[sym.Name] {
			continue
		}
		seen[sym.Name] = true
		out = append(out, ExportedFunction{Name: sym.Name})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// findSeparateDebug searches for a split debug file, in order: the
// embedded debug-link reference (checksum-verified), the build-id keyed
// path under each configured debug root, and the conventional ".debug"
// sibling. First match wins.
func (r *Resolver) findSeparateDebug(f *elf.File, path, buildID string, fromNote bool) *DebugFile {
	if name, crc, ok := debugLink(f); ok {
		for _, candidate := range r.debugLinkCandidates(path, name) {
			if checkDebugLinkCRC(candidate, crc) {
				r.logger.Debug().Str("debug_file", candidate).Msg("Found debug file via debug link")
				return r.validated(candidate)
			}
		}
	}

	if fromNote {
		for _, candidate := range r.buildIDCandidates(buildID) {
			if fileExists(candidate) {
				r.logger.Debug().Str("debug_file", candidate).Msg("Found debug file via build id")
				return r.validated(candidate)
			}
		}
	}

	sibling := path + ".debug"
	if fileExists(sibling) {
		r.logger.Debug().Str("debug_file", sibling).Msg("Found debug sibling file")
		return r.validated(sibling)
	}

	return nil
}

// debugLinkCandidates derives the search paths for an embedded
// .gnu_debuglink filename, per the GDB separate-debug convention.
func (r *Resolver) debugLinkCandidates(libraryPath, linkName string) []string {
	dir := filepath.Dir(libraryPath)
	candidates := []string{
		filepath.Join(dir, linkName),
		filepath.Join(dir, ".debug", linkName),
	}
	for _, root := range r.cfg.DebugRoots {
		candidates = append(candidates, filepath.Join(root, dir, linkName))
	}
	return candidates
}

// buildIDCandidates derives <root>/.build-id/<xx>/<rest>.debug paths.
func (r *Resolver) buildIDCandidates(buildID string) []string {
	if len(buildID) < 4 {
		return nil
	}
	var candidates []string
	for _, root := range r.cfg.DebugRoots {
		candidates = append(candidates, filepath.Join(root, ".build-id", buildID[:2], buildID[2:]+".debug"))
	}
	return candidates
}

// debugLink parses the .gnu_debuglink section: a NUL-terminated filename
// padded to 4 bytes, followed by a CRC-32 of the debug file.
func debugLink(f *elf.File) (name string, crc uint32, ok bool) {
	section := f.Section(".gnu_debuglink")
	if section == nil {
		return "", 0, false
	}
	data, err := section.Data()
	if err != nil || len(data) < 8 {
		return "", 0, false
	}

	nul := strings.IndexByte(string(data), 0)
	if nul <= 0 {
		return "", 0, false
	}
	name = string(data[:nul])

	crcOff := int(align4(uint32(nul + 1)))
	if crcOff+4 > len(data) {
		return "", 0, false
	}
	return name, binary.LittleEndian.Uint32(data[crcOff : crcOff+4]), true
}

// checkDebugLinkCRC verifies a candidate file against the recorded
// CRC-32/IEEE checksum.
func checkDebugLinkCRC(path string, want uint32) bool {
	file, err := os.Open(path) // #nosec G304 - derived debug search path
	if err != nil {
		return false
	}
	defer func() { _ = file.Close() }()

	hasher := crc32.NewIEEE()
	if _, err := io.Copy(hasher, file); err != nil {
		return false
	}
	return hasher.Sum32() == want
}

// findAuxiliary resolves the .gnu_debugaltlink reference (dwz
// supplementary file) of the main debug file, first relative to the main
// file's directory, then by the recorded build id. A missing auxiliary
// file is a warning, never fatal.
func (r *Resolver) findAuxiliary(main *DebugFile) *DebugFile {
	f, err := elf.Open(main.Path)
	if err != nil {
		return nil
	}
	defer errs.DeferClose(r.logger, f, "failed to close main debug file")

	section := f.Section(".gnu_debugaltlink")
	if section == nil {
		return nil
	}
	data, err := section.Data()
	if err != nil {
		return nil
	}

	nul := strings.IndexByte(string(data), 0)
	if nul <= 0 {
		return nil
	}
	name := string(data[:nul])
	altID := hex.EncodeToString(data[nul+1:])

	candidates := []string{}
	if filepath.IsAbs(name) {
		candidates = append(candidates, name)
	} else {
		candidates = append(candidates, filepath.Join(filepath.Dir(main.Path), name))
	}
	candidates = append(candidates, r.buildIDCandidates(altID)...)

	for _, candidate := range candidates {
		if fileExists(candidate) {
			r.logger.Debug().Str("auxiliary", candidate).Msg("Found auxiliary debug file")
			return r.validated(candidate)
		}
	}

	r.logger.Warn().Str("altlink", name).Msg("Auxiliary debug file referenced but not found")
	return nil
}

// validated opens a candidate to confirm it parses as ELF with DWARF.
func (r *Resolver) validated(path string) *DebugFile {
	f, err := elf.Open(path)
	if err != nil {
		r.logger.Warn().Str("debug_file", path).Err(err).Msg("Candidate debug file is not valid ELF")
		return &DebugFile{Path: path, Valid: false}
	}
	defer errs.DeferClose(r.logger, f, "failed to close candidate debug file")
	return &DebugFile{Path: path, Valid: hasDebugSections(f)}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
