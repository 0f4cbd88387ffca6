// Package types provides core types shared across the paraclete engine.
// This package has ZERO dependencies on other paraclete packages to avoid
// circular imports. All other packages should import types from here.
package types
