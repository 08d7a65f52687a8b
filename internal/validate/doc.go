// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package validate holds repository-wide architecture checks. It has no
// runtime code; the rules live in its tests.
package validate
