// Copyright (C) 2024 Gergely Benson
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package i8x

// Reloc holds the address as stored in a note plus a single-slot cache of
// the address as it lives in one inferior. The cache is invalidated
// whenever a different Inferior asks for the relocated value; using a
// Code against two Inferiors in alternation therefore thrashes the cache
// but never returns a stale value for the wrong Inferior.
type Reloc struct {
	Unrelocated uintptr

	cachedValue uintptr
	cachedFrom  Inferior
	hasCache    bool
}

// Resolve returns the relocated address for inf, invoking relocate only
// if the cache is empty or was last filled for a different Inferior.
func (r *Reloc) Resolve(xc *ExecutionContext, inf Inferior) (uintptr, error) {
	if r.hasCache && r.cachedFrom == inf {
		return r.cachedValue, nil
	}
	if xc.ctx.relocate == nil {
		return 0, newErr(ErrRelocFailed, nil, nil)
	}
	v, err := xc.ctx.relocate(inf, r)
	if err != nil {
		return 0, newErr(ErrRelocFailed, nil, err)
	}
	r.cachedValue = uintptr(v)
	r.cachedFrom = inf
	r.hasCache = true
	return r.cachedValue, nil
}
