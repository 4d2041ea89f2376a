package lab

// Recipe is a catalog entry for a sample application.
type Recipe struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AppInfo describes one deployed recipe application.
type AppInfo struct {
	RecipeID string `json:"recipeId"`
	ModelID  string `json:"modelId"`
	Status   string `json:"status"`
	AppPorts []int  `json:"appPorts,omitempty"`
}
