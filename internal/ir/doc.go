// Package ir provides the canonical value types for the Thyxel engine.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps the genome, wallet DNA
// and fossil records as the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - NO float types anywhere - rates are integer basis points
//   - Amounts are *uint256.Int and serialize as decimal strings
//   - All JSON tags use snake_case
//   - Content hashes use RFC 8785 canonical JSON with domain separation
package ir
