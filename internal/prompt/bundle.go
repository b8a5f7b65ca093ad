// Package prompt 는 임베드된 YAML 프롬프트 템플릿을 로드하고 렌더링한다.
package prompt

import (
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Template: system/user 쌍으로 구성된 프롬프트입니다.
// System 은 정적이어야 하고 User 만 {key} 치환을 허용합니다.
type Template struct {
	Name   string `yaml:"-"`
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// Render: User 템플릿을 값으로 치환합니다.
func (t Template) Render(values map[string]string) (string, error) {
	rendered, err := FormatTemplate(t.User, values)
	if err != nil {
		return "", fmt.Errorf("%s.user: %w", t.Name, err)
	}
	return rendered, nil
}

// Bundle 은 디렉터리 단위로 로드된 프롬프트 모음이다.
type Bundle struct {
	templates map[string]Template
}

// LoadBundle: fs 내 dir 의 *.yml, *.yaml 파일을 파일명 기준으로 로드합니다.
func LoadBundle(fsys fs.FS, dir string) (*Bundle, error) {
	var paths []string
	for _, pattern := range []string{"*.yml", "*.yaml"} {
		matched, err := fs.Glob(fsys, path.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("glob prompt dir: %w", err)
		}
		paths = append(paths, matched...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no prompt files in %s", dir)
	}

	templates := make(map[string]Template, len(paths))
	for _, filePath := range paths {
		tmpl, err := loadTemplate(fsys, filePath)
		if err != nil {
			return nil, err
		}
		templates[tmpl.Name] = tmpl
	}
	return &Bundle{templates: templates}, nil
}

func loadTemplate(fsys fs.FS, filePath string) (Template, error) {
	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return Template{}, fmt.Errorf("read prompt file: %w", err)
	}

	var tmpl Template
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return Template{}, fmt.Errorf("parse prompt yaml %s: %w", filePath, err)
	}
	tmpl.Name = strings.TrimSuffix(path.Base(filePath), path.Ext(filePath))
	if strings.TrimSpace(tmpl.User) == "" {
		return Template{}, fmt.Errorf("%s: user prompt is empty", filePath)
	}
	if err := ValidateSystemStatic(filePath, tmpl.System); err != nil {
		return Template{}, err
	}
	return tmpl, nil
}

// Template: 이름으로 프롬프트를 조회합니다.
func (b *Bundle) Template(name string) (Template, error) {
	if b == nil {
		return Template{}, fmt.Errorf("prompts not initialized")
	}
	tmpl, ok := b.templates[name]
	if !ok {
		return Template{}, fmt.Errorf("prompt not found: %s", name)
	}
	return tmpl, nil
}

// Names: 로드된 프롬프트 이름 목록(정렬됨)입니다.
func (b *Bundle) Names() []string {
	if b == nil {
		return nil
	}
	names := make([]string, 0, len(b.templates))
	for name := range b.templates {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
