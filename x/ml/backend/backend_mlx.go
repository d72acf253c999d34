//go:build mlx

package backend

import _ "github.com/ollama/ollama-sdpa/x/ml/backend/mlx"
