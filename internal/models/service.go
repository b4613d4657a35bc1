package models

type Service struct {
	ID                   string `json:"id" yaml:"id"`
	Code                 string `json:"code" yaml:"code"`
	Name                 string `json:"name" yaml:"name"`
	Description          string `json:"description" yaml:"description"`
	EstimatedTimeMinutes int    `json:"estimatedTimeMinutes" yaml:"estimated_time_minutes"`
}
