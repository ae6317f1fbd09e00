// Copyright (c) 2018–2024 The instrbuilder developers. All rights reserved.
// Project site: https://github.com/lucask07/instrbuilder
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

//go:build !visa

package visa

import "fmt"

func openNative(r Resource, _ options) (Conn, error) {
	return nil, fmt.Errorf("%s: %w", r.Name, ErrNoNative)
}
