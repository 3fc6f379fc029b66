package config

import (
	"log"
	"os"
	"strconv"
)

func getEnvAsString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Warning: invalid int %q for %s, using default %d", v, key, fallback)
		return fallback
	}
	return n
}

func getEnvAsInt64(key string, fallback int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("Warning: invalid int64 %q for %s, using default %d", v, key, fallback)
		return fallback
	}
	return n
}

func getEnvAsFloat64(key string, fallback float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("Warning: invalid float64 %q for %s, using default %f", v, key, fallback)
		return fallback
	}
	return f
}

func getEnvAsBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("Warning: invalid bool %q for %s, using default %v", v, key, fallback)
		return fallback
	}
	return b
}
