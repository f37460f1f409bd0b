// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.
package driver

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"irasm/diag"
	"irasm/utils"
)

// NewWorkspace creates an isolated temp build directory and copies
// sourcePath into it, returning the directory, the copied source's new
// path, and a cleanup func. Named with github.com/google/uuid rather
// than a bare ioutil.TempDir pattern, so a workspace left behind by
// --keep-workspace is unambiguously greppable and never collides with a
// concurrent compilation.
func NewWorkspace(sourcePath string) (dir, copiedSource string, cleanup func(), err error) {
	base := os.TempDir()
	dir = filepath.Join(base, "irasmc-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", nil, diag.Wrap(diag.ToolError, err, "failed to create build workspace")
	}

	copiedSource = filepath.Join(dir, filepath.Base(sourcePath))
	if err := utils.CopyFile(sourcePath, copiedSource); err != nil {
		os.RemoveAll(dir)
		return "", "", nil, diag.Wrap(diag.ToolError, err, "failed to copy %s into workspace", sourcePath)
	}

	cleanup = func() { os.RemoveAll(dir) }
	return dir, copiedSource, cleanup, nil
}
