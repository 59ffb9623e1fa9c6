package validator

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/a3sha2/oxasl/recipe"
	"github.com/a3sha2/oxasl/util"
)

type recipeValidator func(*recipe.Recipe) []ValidationError

type ValidationErrorLevel int64

const (
	Error ValidationErrorLevel = iota
	Warning
)

func (l ValidationErrorLevel) String() string {
	switch l {
	case Error:
		return "ERROR"
	case Warning:
		return "WARNING"
	}
	return "?"
}

type ValidationError struct {
	Level   ValidationErrorLevel `json:"level"`
	Message string               `json:"message"`
}

func (vr ValidationError) Error() string {
	return vr.Message
}

// Functions used to validate the syntax of a recipe. Any validation
// errors here are fatal: the recipe cannot be handed to the build
// tooling.
var recipeSyntaxValidators = []recipeValidator{
	ensureHasPackageIdentity,
	validateSourceSpec,
	validateInstallScript,
	validateDependencySpecs,
	checkDuplicateDeps,
	validateTestCommands,
}

// Functions used to validate the semantics of a recipe. Validation
// errors here are not fatal, but the suggested corrections should be
// applied.
var recipeSemanticValidators = []recipeValidator{
	checkTestCoverage,
	checkSourceDigest,
	checkLicenseFile,
	checkRuntimeRequirement,
	checkMaintainers,
}

var (
	packageNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)
	versionRegex     = regexp.MustCompile(`^[0-9][0-9A-Za-z._+-]*$`)
	depNameRegex     = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	depConstraint    = regexp.MustCompile(`^(>=|<=|==|!=|>|<|=)?[0-9*][0-9A-Za-z._*+-]*(,(>=|<=|==|!=|>|<|=)?[0-9*][0-9A-Za-z._*+-]*)*$`)
	sha256Regex      = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
)

// CheckRecipeSyntax verifies that the recipe is well-formed enough to
// hand to the build tooling.
func CheckRecipeSyntax(r *recipe.Recipe) []ValidationError {
	validationErrs := []ValidationError{}
	for _, validate := range recipeSyntaxValidators {
		validationErrs = append(validationErrs, validate(r)...)
	}
	return validationErrs
}

// CheckRecipeSemantics verifies the advisory properties of the recipe.
func CheckRecipeSemantics(r *recipe.Recipe) []ValidationError {
	validationErrs := []ValidationError{}
	for _, validate := range recipeSemanticValidators {
		validationErrs = append(validationErrs, validate(r)...)
	}
	return validationErrs
}

// HasErrors reports whether any of the given validation results is
// error level.
func HasErrors(errs []ValidationError) bool {
	for _, e := range errs {
		if e.Level == Error {
			return true
		}
	}
	return false
}

// ensure the recipe names the package it builds and gives it a version
func ensureHasPackageIdentity(r *recipe.Recipe) []ValidationError {
	errs := []ValidationError{}
	if r.Package.Name == "" {
		errs = append(errs, ValidationError{
			Message: "recipe must declare a package name",
			Level:   Error,
		})
	} else if !packageNameRegex.MatchString(r.Package.Name) {
		errs = append(errs, ValidationError{
			Message: fmt.Sprintf("package name '%s' contains characters outside [a-z0-9._-]", r.Package.Name),
			Level:   Error,
		})
	}

	if r.Package.Version == "" {
		errs = append(errs, ValidationError{
			Message: "recipe must declare a package version",
			Level:   Error,
		})
	} else if !versionRegex.MatchString(r.Package.Version) {
		errs = append(errs, ValidationError{
			Message: fmt.Sprintf("package version '%s' is not a plausible version string", r.Package.Version),
			Level:   Error,
		})
	}

	return errs
}

// ensure the recipe locates its source in exactly one way
func validateSourceSpec(r *recipe.Recipe) []ValidationError {
	errs := []ValidationError{}
	hasPath := r.Source.Path != ""
	hasURL := r.Source.URL != ""

	if hasPath && hasURL {
		errs = append(errs, ValidationError{
			Message: "source declares both a path and a url; pick one",
			Level:   Error,
		})
	}
	if !hasPath && !hasURL {
		errs = append(errs, ValidationError{
			Message: "source must declare a path or a url",
			Level:   Error,
		})
	}

	if hasURL {
		if u, err := url.Parse(r.Source.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{
				Message: fmt.Sprintf("source url '%s' is not an absolute url", r.Source.URL),
				Level:   Error,
			})
		}
	}

	if r.Source.SHA256 != "" && !sha256Regex.MatchString(r.Source.SHA256) {
		errs = append(errs, ValidationError{
			Message: fmt.Sprintf("source sha256 '%s' is not a 64 character hex digest", r.Source.SHA256),
			Level:   Error,
		})
	}

	return errs
}

// ensure the declared install action parses to a single runnable command
func validateInstallScript(r *recipe.Recipe) []ValidationError {
	if _, err := r.InstallInvocation(); err != nil {
		return []ValidationError{
			{
				Message: fmt.Sprintf("install script is not runnable: %v", err),
				Level:   Error,
			},
		}
	}
	return nil
}

// ensure every dependency spec string parses as a name with an
// optional version constraint
func validateDependencySpecs(r *recipe.Recipe) []ValidationError {
	errs := []ValidationError{}
	for section, deps := range map[string][]string{
		"requirements.build": r.BuildDeps(),
		"requirements.run":   r.RunDeps(),
		"test.requires":      r.TestDeps(),
	} {
		for _, dep := range deps {
			if err := checkDependencySpec(dep); err != nil {
				errs = append(errs, ValidationError{
					Message: fmt.Sprintf("%s: %v", section, err),
					Level:   Error,
				})
			}
		}
	}
	return errs
}

func checkDependencySpec(dep string) error {
	fields := strings.Fields(dep)
	if len(fields) == 0 {
		return fmt.Errorf("dependency spec is empty")
	}
	if !depNameRegex.MatchString(fields[0]) {
		return fmt.Errorf("dependency name '%s' is malformed", fields[0])
	}
	if len(fields) > 2 {
		return fmt.Errorf("dependency spec '%s' has too many fields", dep)
	}
	if len(fields) == 2 && !depConstraint.MatchString(fields[1]) {
		return fmt.Errorf("dependency constraint '%s' is malformed", fields[1])
	}
	return nil
}

// ensure no dependency is named twice within a section
func checkDuplicateDeps(r *recipe.Recipe) []ValidationError {
	errs := []ValidationError{}
	for section, deps := range map[string][]string{
		"requirements.build": r.BuildDeps(),
		"requirements.run":   r.RunDeps(),
		"test.requires":      r.TestDeps(),
	} {
		seen := []string{}
		for _, dep := range deps {
			name := strings.Fields(dep)
			if len(name) == 0 {
				continue
			}
			if util.StringSliceContains(seen, name[0]) {
				errs = append(errs, ValidationError{
					Message: fmt.Sprintf("%s names dependency '%s' more than once", section, name[0]),
					Level:   Error,
				})
				continue
			}
			seen = append(seen, name[0])
		}
	}
	return errs
}

// ensure every declared test command parses
func validateTestCommands(r *recipe.Recipe) []ValidationError {
	if _, err := r.TestInvocations(); err != nil {
		return []ValidationError{
			{
				Message: fmt.Sprintf("test commands are not runnable: %v", err),
				Level:   Error,
			},
		}
	}
	return nil
}

// a recipe without tests builds packages nobody has exercised
func checkTestCoverage(r *recipe.Recipe) []ValidationError {
	if len(r.Test.Commands.List()) == 0 && len(r.Test.Imports) == 0 {
		return []ValidationError{
			{
				Message: "recipe declares no test commands or import checks",
				Level:   Warning,
			},
		}
	}
	return nil
}

// a url source without a digest cannot be verified after download
func checkSourceDigest(r *recipe.Recipe) []ValidationError {
	if r.Source.URL != "" && r.Source.SHA256 == "" {
		return []ValidationError{
			{
				Message: "source url has no sha256 digest; downloads cannot be verified",
				Level:   Warning,
			},
		}
	}
	return nil
}

// license declarations should point at a license file and vice versa
func checkLicenseFile(r *recipe.Recipe) []ValidationError {
	errs := []ValidationError{}
	if r.About.License != "" && r.About.LicenseFile == "" {
		errs = append(errs, ValidationError{
			Message: fmt.Sprintf("about declares license '%s' but no license_file", r.About.License),
			Level:   Warning,
		})
	}
	if r.About.LicenseFile != "" && r.About.License == "" {
		errs = append(errs, ValidationError{
			Message: fmt.Sprintf("about references license_file '%s' but declares no license", r.About.LicenseFile),
			Level:   Warning,
		})
	}
	return errs
}

// a package built against a runtime should declare it for consumers too
func checkRuntimeRequirement(r *recipe.Recipe) []ValidationError {
	buildRuntime := dependencyNamed(r.BuildDeps(), "python")
	runRuntime := dependencyNamed(r.RunDeps(), "python")
	if buildRuntime && !runRuntime {
		return []ValidationError{
			{
				Message: "requirements.build includes python but requirements.run does not",
				Level:   Warning,
			},
		}
	}
	return nil
}

func dependencyNamed(deps []string, name string) bool {
	for _, dep := range deps {
		fields := strings.Fields(dep)
		if len(fields) > 0 && fields[0] == name {
			return true
		}
	}
	return false
}

// recipes should name somebody to contact about them
func checkMaintainers(r *recipe.Recipe) []ValidationError {
	info, err := r.GetExtraInfo()
	if err != nil {
		return []ValidationError{
			{
				Message: fmt.Sprintf("extra section is malformed: %v", err),
				Level:   Warning,
			},
		}
	}
	if len(info.Maintainers) == 0 {
		return []ValidationError{
			{
				Message: "recipe names no maintainers in extra.recipe-maintainers",
				Level:   Warning,
			},
		}
	}
	return nil
}
